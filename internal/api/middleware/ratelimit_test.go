package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pathnote/pathnote/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, remoteAddr, deviceID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/tracking/positions", http.NoBody)
	req.RemoteAddr = remoteAddr
	if deviceID != "" {
		req.Header.Set(middleware.DeviceIDHeader, deviceID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute})(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:1234", "").Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "10.0.0.1:1234", "").Code)
	assert.Equal(t, http.StatusOK, serve(handler, "10.0.0.2:1234", "").Code, "other IPs have their own budget")
}

func TestRateLimitByDevice(t *testing.T) {
	handler := middleware.RateLimitByDevice(middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute})(okHandler())

	// Two devices behind one NAT address.
	assert.Equal(t, http.StatusOK, serve(handler, "198.51.100.7:1", "phone-a").Code)
	assert.Equal(t, http.StatusOK, serve(handler, "198.51.100.7:1", "phone-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "198.51.100.7:1", "phone-a").Code)
	assert.Equal(t, http.StatusOK, serve(handler, "198.51.100.7:1", "phone-b").Code)

	// Without a device id the client IP is the key.
	assert.Equal(t, http.StatusOK, serve(handler, "198.51.100.8:1", "").Code)
	assert.Equal(t, http.StatusOK, serve(handler, "198.51.100.8:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "198.51.100.8:1", "").Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	handler := middleware.RequestID(
		middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 30 * time.Second})(okHandler()),
	)

	assert.Equal(t, http.StatusOK, serve(handler, "203.0.113.1:1", "").Code)
	rec := serve(handler, "203.0.113.1:1", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "Rate limit exceeded")
	assert.Contains(t, body, "/v1/tracking/positions")
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 600, middleware.IngestRateLimit.RequestLimit)
	assert.Equal(t, 30, middleware.GeocodeRateLimit.RequestLimit)
	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.StandardRateLimit.WindowLength)
}
