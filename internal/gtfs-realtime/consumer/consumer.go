package consumer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/hsltracker-data/internal/common/logger"
)

const UserAgent = "hsltracker-data/1.0"

// FeedFetchError wraps everything that can go wrong while fetching or
// decoding the realtime feed. Transient failures (network, timeout,
// upstream 5xx) are retried naturally by the caller's next poll tick; the
// client itself never retries.
type FeedFetchError struct {
	Cause     error
	Transient bool
}

func (e *FeedFetchError) Error() string {
	return fmt.Sprintf("fetching realtime feed: %v", e.Cause)
}

func (e *FeedFetchError) Unwrap() error {
	return e.Cause
}

// Client fetches and decodes the GTFS-realtime vehicle position feed.
type Client struct {
	url        string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a feed client with a bounded request timeout so a
// hanging upstream can never stall the poll loop indefinitely.
func NewClient(url string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: log,
	}
}

// Fetch performs one GET of the binary feed and decodes it.
func (c *Client) Fetch(ctx context.Context) (*gtfsrt.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FeedFetchError{Cause: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FeedFetchError{Cause: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FeedFetchError{
			Cause:     fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status),
			Transient: true,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FeedFetchError{Cause: fmt.Errorf("reading response body: %w", err), Transient: true}
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, &FeedFetchError{Cause: fmt.Errorf("unmarshalling protobuf: %w", err), Transient: true}
	}

	c.logger.Debug("Fetched realtime feed", "entities", len(feed.Entity))
	return feed, nil
}
