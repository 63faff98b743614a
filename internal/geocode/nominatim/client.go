// Package nominatim implements geocode.Provider on top of the
// OpenStreetMap Nominatim API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/geocode"
	"github.com/pathnote/pathnote/internal/provider/resilience"
	"github.com/pathnote/pathnote/pkg/geo"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent is sent with every request; the public instance
	// rejects anonymous clients.
	DefaultUserAgent = "pathnote/1.0"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultLimit caps search results when the caller passes zero.
	DefaultLimit = 5

	maxLimit = 40
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// UserAgent identifies the application (optional).
	UserAgent string

	// Email is passed to Nominatim for contact on heavy use (optional).
	Email string

	// Language sets Accept-Language for place names (optional).
	Language string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records request durations (optional).
	Metrics *resilience.Metrics

	Logger zerolog.Logger
}

// Client is a Nominatim API client.
type Client struct {
	baseURL    string
	userAgent  string
	email      string
	language   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ geocode.Provider = (*Client)(nil)

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Header = http.Header{"User-Agent": []string{userAgent}}
		clientCfg.Registry = cfg.Registry
		clientCfg.Metrics = cfg.Metrics
		cb := resilience.DefaultCircuitBreakerConfig(ProviderName)
		cb.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		clientCfg.CircuitBreaker = &cb
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		email:      cfg.Email,
		language:   cfg.Language,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Search resolves a free-text query to at most limit places.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocode.Place, error) {
	query = geocode.NormalizeQuery(query)
	if query == "" {
		return nil, &geocode.Error{
			Provider: ProviderName,
			Code:     "EMPTY_QUERY",
			Message:  "search query is required",
			Err:      geocode.ErrEmptyQuery,
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")

	var results []searchResult
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}

	places := make([]geocode.Place, 0, len(results))
	for i := range results {
		place, ok := toPlace(&results[i])
		if !ok {
			c.logger.Debug().Int64("place_id", results[i].PlaceID).Msg("skipping result with unparsable coordinates")
			continue
		}
		places = append(places, place)
	}

	c.logger.Debug().Str("query", query).Int("results", len(places)).Msg("search complete")
	return places, nil
}

// Reverse resolves a coordinate to the nearest addressable place.
func (c *Client) Reverse(ctx context.Context, coord geo.Coordinate) (*geocode.Place, error) {
	if !coord.Valid() {
		return nil, &geocode.Error{
			Provider: ProviderName,
			Code:     "INVALID_COORDINATE",
			Message:  fmt.Sprintf("coordinate (%f, %f) out of range", coord.Lat, coord.Lng),
			Err:      geocode.ErrInvalidCoordinate,
		}
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Lng, 'f', -1, 64))
	params.Set("addressdetails", "1")

	var result searchResult
	if err := c.get(ctx, "/reverse", params, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, &geocode.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  result.Error,
			Err:      geocode.ErrNotFound,
		}
	}

	place, ok := toPlace(&result)
	if !ok {
		return nil, fmt.Errorf("decoding reverse result: bad coordinates %q,%q", result.Lat, result.Lon)
	}
	return &place, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("format", "json")
	if c.email != "" {
		params.Set("email", c.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("geocoding request failed")
		return &geocode.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      geocode.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// handleErrorResponse maps Nominatim error responses to geocode errors.
func handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("geocoding provider returned status %d", statusCode)
	var nErr errorResponse
	if err := json.Unmarshal(body, &nErr); err == nil && nErr.Error.Message != "" {
		message = nErr.Error.Message
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &geocode.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "geocoding rate limit exceeded, please try again later",
			Err:      geocode.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusForbidden:
		return &geocode.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "geocoding access denied, check the configured user agent",
			Err:      geocode.ErrProviderUnavailable,
		}
	case statusCode >= 500:
		return &geocode.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "geocoding provider is temporarily unavailable",
			Err:      geocode.ErrProviderUnavailable,
		}
	default:
		return &geocode.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  message,
			Err:      geocode.ErrRejected,
		}
	}
}

func toPlace(r *searchResult) (geocode.Place, bool) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return geocode.Place{}, false
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return geocode.Place{}, false
	}

	name := r.Name
	if name == "" {
		name = shortName(r.Address)
	}
	if name == "" {
		name = r.DisplayName
	}

	return geocode.Place{
		Name:        name,
		DisplayName: r.DisplayName,
		Coordinate:  geo.Coordinate{Lat: lat, Lng: lng},
	}, true
}

// shortName builds "road house_number" from address details when the result
// has no name of its own.
func shortName(addr map[string]string) string {
	road := addr["road"]
	if road == "" {
		return ""
	}
	if n := addr["house_number"]; n != "" {
		return road + " " + n
	}
	return road
}
