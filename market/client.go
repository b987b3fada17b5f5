package market

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client is an HTTP client for a day-ahead price API.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a price API client with default settings.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		userAgent:  "dispatch-market-client/1.0",
	}
}

// SetUserAgent sets a custom user agent for subsequent requests.
func (c *Client) SetUserAgent(userAgent string) {
	c.userAgent = userAgent
}

// DownloadPriceDocument downloads and decodes the day-ahead price document
// covering the day that contains now in the given market timezone. urlFormat
// receives the period start, period end and security token, in that order.
func DownloadPriceDocument(ctx context.Context, securityToken, urlFormat string, location *time.Location, now time.Time) (*PriceDocument, error) {
	day := now.In(location)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	url := fmt.Sprintf(urlFormat, periodStamp(start), periodStamp(start.AddDate(0, 0, 1)), securityToken)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return NewClient().Download(ctx, url)
}

// periodStamp renders a period boundary in the compact UTC form the
// day-ahead API's periodStart/periodEnd query parameters expect.
func periodStamp(t time.Time) string {
	return t.UTC().Format("200601021504")
}

// Download fetches and decodes a price document from the given URL.
func (c *Client) Download(ctx context.Context, apiURL string) (*PriceDocument, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("API URL cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, resp.Status)
	}

	doc, err := DecodePriceDocumentXML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode XML response: %w", err)
	}
	return doc, nil
}
