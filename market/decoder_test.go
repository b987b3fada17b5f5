package market

import (
	"strings"
	"testing"
	"time"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
	<mRID>doc-1</mRID>
	<createdDateTime>2025-09-04T12:00:00Z</createdDateTime>
	<period.timeInterval>
		<start>2025-09-04T22:00Z</start>
		<end>2025-09-05T22:00Z</end>
	</period.timeInterval>
	<TimeSeries>
		<mRID>1</mRID>
		<businessType>A62</businessType>
		<currency_Unit.name>EUR</currency_Unit.name>
		<price_Measure_Unit.name>MWH</price_Measure_Unit.name>
		<Period>
			<timeInterval>
				<start>2025-09-04T22:00Z</start>
				<end>2025-09-05T22:00Z</end>
			</timeInterval>
			<resolution>PT60M</resolution>
			<Point><position>1</position><price.amount>50.0</price.amount></Point>
			<Point><position>2</position><price.amount>45.5</price.amount></Point>
			<Point><position>4</position><price.amount>60.0</price.amount></Point>
		</Period>
	</TimeSeries>
</Publication_MarketDocument>`

func TestDecodePriceDocumentXML(t *testing.T) {
	doc, err := DecodePriceDocumentXML(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("DecodePriceDocumentXML returned error: %v", err)
	}

	if doc.MRID != "doc-1" {
		t.Errorf("MRID = %q, expected %q", doc.MRID, "doc-1")
	}
	if len(doc.TimeSeries) != 1 {
		t.Fatalf("len(TimeSeries) = %d, expected 1", len(doc.TimeSeries))
	}

	period := doc.TimeSeries[0].Period
	if period.Resolution != time.Hour {
		t.Errorf("Resolution = %v, expected 1h", period.Resolution)
	}
	if len(period.Points) != 3 {
		t.Fatalf("len(Points) = %d, expected 3", len(period.Points))
	}

	expectedStart := time.Date(2025, 9, 4, 22, 0, 0, 0, time.UTC)
	if !period.TimeInterval.Start.Equal(expectedStart) {
		t.Errorf("period start = %v, expected %v", period.TimeInterval.Start, expectedStart)
	}
}

func TestDecodePriceDocumentXML_Malformed(t *testing.T) {
	_, err := DecodePriceDocumentXML(strings.NewReader("<Publication_MarketDocument><mRID>"))
	if err == nil {
		t.Fatal("expected error for malformed XML")
	}
}

func TestLookupPriceByTime(t *testing.T) {
	doc, err := DecodePriceDocumentXML(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("DecodePriceDocumentXML returned error: %v", err)
	}

	tests := []struct {
		name     string
		at       time.Time
		expected float64
		found    bool
	}{
		// Period starts 2025-09-04T22:00Z with hourly resolution.
		{name: "first interval", at: time.Date(2025, 9, 4, 22, 30, 0, 0, time.UTC), expected: 50.0, found: true},
		{name: "second interval", at: time.Date(2025, 9, 4, 23, 0, 0, 0, time.UTC), expected: 45.5, found: true},
		// Position 3 is omitted: the previous price carries over.
		{name: "gap repeats previous price", at: time.Date(2025, 9, 5, 0, 30, 0, 0, time.UTC), expected: 45.5, found: true},
		{name: "fourth interval", at: time.Date(2025, 9, 5, 1, 15, 0, 0, time.UTC), expected: 60.0, found: true},
		// Positions after the last point carry its price forward.
		{name: "after last point", at: time.Date(2025, 9, 5, 10, 0, 0, 0, time.UTC), expected: 60.0, found: true},
		{name: "before period", at: time.Date(2025, 9, 4, 21, 0, 0, 0, time.UTC), found: false},
		{name: "after period", at: time.Date(2025, 9, 5, 22, 0, 0, 0, time.UTC), found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, found := doc.LookupPriceByTime(tt.at)
			if found != tt.found {
				t.Fatalf("found = %v, expected %v", found, tt.found)
			}
			if found && price != tt.expected {
				t.Errorf("price = %v, expected %v", price, tt.expected)
			}
		})
	}
}

func TestHourlyProfile(t *testing.T) {
	doc, err := DecodePriceDocumentXML(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("DecodePriceDocumentXML returned error: %v", err)
	}

	start := time.Date(2025, 9, 4, 22, 0, 0, 0, time.UTC)
	profile, complete := doc.HourlyProfile(start, 4)
	if !complete {
		t.Error("profile should be complete within the covered period")
	}

	expected := []float64{50.0, 45.5, 45.5, 60.0}
	for i := range expected {
		if profile[i] != expected[i] {
			t.Errorf("profile[%d] = %v, expected %v", i, profile[i], expected[i])
		}
	}
}

func TestHourlyProfile_Incomplete(t *testing.T) {
	doc, err := DecodePriceDocumentXML(strings.NewReader(sampleXML))
	if err != nil {
		t.Fatalf("DecodePriceDocumentXML returned error: %v", err)
	}

	// Starting one hour before the period: the first hour is uncovered.
	start := time.Date(2025, 9, 4, 21, 0, 0, 0, time.UTC)
	profile, complete := doc.HourlyProfile(start, 3)
	if complete {
		t.Error("profile should report incomplete coverage")
	}
	if profile[0] != 0 {
		t.Errorf("uncovered hour should be 0, got %v", profile[0])
	}
	if profile[1] != 50.0 {
		t.Errorf("profile[1] = %v, expected 50.0", profile[1])
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{input: "PT15M", expected: 15 * time.Minute},
		{input: "PT30M", expected: 30 * time.Minute},
		{input: "PT60M", expected: time.Hour},
		{input: "PT1H", expected: time.Hour},
		{input: "P1D", expected: 24 * time.Hour},
		{input: "PT7M", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseResolution(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResolution(%q) returned error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseResolution(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}
