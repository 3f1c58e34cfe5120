package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"

	"github.com/osa030/tunemap/internal/app/notification"
	"github.com/osa030/tunemap/internal/domain/region"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.StatusCode)
	}
	return strconv.Itoa(e.StatusCode) + " " + e.Message
}

// Client is a client for the HTTP API.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL. adminToken may be
// empty when no admin call is made.
func NewClient(baseURL, adminToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		httpClient: httpClient,
	}
}

// Cached returns cached entries for codes without triggering fetches.
func (c *Client) Cached(ctx context.Context, codes []string) (*RegionsResponse, error) {
	q := url.Values{"codes": {strings.Join(codes, ",")}}
	var resp RegionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/regions?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh refreshes the given country codes.
func (c *Client) Refresh(ctx context.Context, codes []string) (*RegionsResponse, error) {
	var resp RegionsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/regions/refresh", RefreshRequest{Codes: codes}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshViewport refreshes every country visible in v.
func (c *Client) RefreshViewport(ctx context.Context, v region.Viewport) (*RegionsResponse, error) {
	req := RefreshRequest{Viewport: &ViewportRequest{
		Center:   CoordinateRequest{Lat: v.Center.Latitude, Lon: v.Center.Longitude},
		LatDelta: v.LatitudeDelta,
		LonDelta: v.LongitudeDelta,
	}}
	var resp RegionsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/regions/refresh", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Offer asks whether a new area search should be offered at current.
func (c *Client) Offer(ctx context.Context, current region.Coordinate, last *region.Coordinate) (*OfferResponse, error) {
	q := url.Values{
		"lat": {formatFloat(current.Latitude)},
		"lon": {formatFloat(current.Longitude)},
	}
	if last != nil {
		q.Set("last_lat", formatFloat(last.Latitude))
		q.Set("last_lon", formatFloat(last.Longitude))
	}
	var resp OfferResponse
	if err := c.do(ctx, http.MethodGet, "/v1/viewport/offer?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the server's cache and token status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Remove evicts one country. Requires the admin token.
func (c *Client) Remove(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/v1/cache/"+url.PathEscape(code), nil, nil)
}

// Clear empties the cache. Requires the admin token.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/cache", nil, nil)
}

// Watch streams cache change events to fn until ctx ends or the stream
// breaks. A nil return means ctx ended.
func (c *Client) Watch(ctx context.Context, fn func(*notification.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "failed to open event stream")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeStatusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event notification.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return errors.Wrap(err, "failed to decode event")
		}
		fn(&event)
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "event stream failed")
	}
	return errors.New("event stream closed by server")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set(AdminTokenHeader, c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	var body errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
