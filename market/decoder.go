// Package market downloads and decodes day-ahead electricity price documents
// and turns them into the hourly cost profiles the dispatch service feeds
// into its grid entity.
package market

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// PriceDocument is the decoded day-ahead publication document, trimmed to
// the fields the dispatch service consumes.
type PriceDocument struct {
	XMLName            xml.Name     `xml:"Publication_MarketDocument"`
	MRID               string       `xml:"mRID"`
	CreatedDateTime    string       `xml:"createdDateTime"`
	PeriodTimeInterval TimeInterval `xml:"period.timeInterval"`
	TimeSeries         []TimeSeries `xml:"TimeSeries"`
}

// TimeSeries carries one priced period.
type TimeSeries struct {
	MRID                 string `xml:"mRID"`
	BusinessType         string `xml:"businessType"`
	CurrencyUnitName     string `xml:"currency_Unit.name"`
	PriceMeasureUnitName string `xml:"price_Measure_Unit.name"`
	Period               Period `xml:"Period"`
}

// TimeInterval represents a start/end pair.
type TimeInterval struct {
	Start time.Time `xml:"start"`
	End   time.Time `xml:"end"`
}

// UnmarshalXML implements custom XML unmarshaling for TimeInterval.
func (ti *TimeInterval) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		Start string `xml:"start"`
		End   string `xml:"end"`
	}
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}

	var err error
	ti.Start, err = parseTimeString(aux.Start)
	if err != nil {
		return fmt.Errorf("error parsing start time: %w", err)
	}
	ti.End, err = parseTimeString(aux.End)
	if err != nil {
		return fmt.Errorf("error parsing end time: %w", err)
	}
	return nil
}

// parseTimeString parses the time formats seen in market documents.
func parseTimeString(timeStr string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, timeStr); err == nil {
		return t, nil
	}
	// Simplified format without seconds (2025-09-04T22:00Z)
	if t, err := time.Parse("2006-01-02T15:04Z", timeStr); err == nil {
		return t, nil
	}
	// With offset but no seconds (2025-09-04T22:00+02:00)
	if t, err := time.Parse("2006-01-02T15:04Z07:00", timeStr); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unable to parse time string: %s", timeStr)
}

// Period is a priced interval with a resolution and position-indexed points.
type Period struct {
	TimeInterval TimeInterval  `xml:"timeInterval"`
	Resolution   time.Duration `xml:"resolution"`
	Points       []Point       `xml:"Point"`
}

// UnmarshalXML implements custom XML unmarshaling for Period.
func (p *Period) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux struct {
		TimeInterval TimeInterval `xml:"timeInterval"`
		Resolution   string       `xml:"resolution"`
		Points       []Point      `xml:"Point"`
	}
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}

	p.TimeInterval = aux.TimeInterval
	p.Points = aux.Points

	var err error
	p.Resolution, err = parseResolution(aux.Resolution)
	if err != nil {
		return fmt.Errorf("error parsing resolution: %w", err)
	}
	return nil
}

// parseResolution handles the ISO 8601 durations day-ahead documents use.
func parseResolution(resolution string) (time.Duration, error) {
	switch resolution {
	case "PT15M":
		return 15 * time.Minute, nil
	case "PT30M":
		return 30 * time.Minute, nil
	case "PT60M", "PT1H":
		return time.Hour, nil
	case "P1D":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported resolution: %s", resolution)
}

// Point is a price point. Positions are 1-based; a missing position means
// the previous price carries over unchanged.
type Point struct {
	Position    int     `xml:"position"`
	PriceAmount float64 `xml:"price.amount"`
}

// DecodePriceDocumentXML decodes a day-ahead price document.
func DecodePriceDocumentXML(r io.Reader) (*PriceDocument, error) {
	var doc PriceDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error parsing XML: %w", err)
	}
	return &doc, nil
}

// LookupPriceByTime searches all time series for the price of the interval
// containing the given time. Returns (0, false) when no series covers it.
func (doc *PriceDocument) LookupPriceByTime(t time.Time) (float64, bool) {
	for i := range doc.TimeSeries {
		if price, found := doc.TimeSeries[i].Period.priceByTime(t); found {
			return price, true
		}
	}
	return 0, false
}

// HourlyProfile extracts a price per hour for the given number of hours
// starting at start. Hours the document does not cover report ok = false.
func (doc *PriceDocument) HourlyProfile(start time.Time, hours int) ([]float64, bool) {
	profile := make([]float64, hours)
	ok := true
	for h := 0; h < hours; h++ {
		price, found := doc.LookupPriceByTime(start.Add(time.Duration(h) * time.Hour))
		if !found {
			ok = false
			continue
		}
		profile[h] = price
	}
	return profile, ok
}

// priceByTime resolves a time to a 1-based position and returns its price.
// A gap before a known position repeats the last seen price, matching the
// publication convention of omitting unchanged points.
func (p *Period) priceByTime(t time.Time) (float64, bool) {
	position := p.position(t)
	if position <= 0 {
		return 0, false
	}

	var last *Point
	for i := range p.Points {
		point := &p.Points[i]
		if point.Position == position {
			return point.PriceAmount, true
		}
		if point.Position > position && last != nil {
			return last.PriceAmount, true
		}
		last = point
	}
	if last != nil && last.Position < position {
		return last.PriceAmount, true
	}
	return 0, false
}

// position maps a time to its 1-based interval position, or 0 when the time
// is outside the period.
func (p *Period) position(t time.Time) int {
	offset := t.Sub(p.TimeInterval.Start)
	if offset < 0 {
		return 0
	}
	if !t.Before(p.TimeInterval.End) {
		return 0
	}
	return int(offset.Nanoseconds()/p.Resolution.Nanoseconds()) + 1
}
