package resilience_test

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathnote/pathnote/internal/provider/resilience"
)

func TestRegistry_RegisterOnNewClient(t *testing.T) {
	registry := resilience.NewRegistry()

	for _, name := range []string{"photon", "nominatim"} {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		resilience.NewClient(cfg)
	}

	all := registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, "nominatim", all[0].Name)
	assert.Equal(t, "photon", all[1].Name)
	assert.Equal(t, gobreaker.StateClosed, all[0].CircuitState)
}

func TestRegistry_RecordUnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	registry.RecordSuccess("missing")
	registry.RecordFailure("missing", errors.New("boom"))

	_, ok := registry.Health("missing")
	assert.False(t, ok)
	assert.Empty(t, registry.All())
}

func TestRegistry_RecordFailureKeepsLastError(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("nominatim", resilience.NewClient(resilience.DefaultClientConfig("nominatim")))

	registry.RecordFailure("nominatim", errors.New("first"))
	registry.RecordFailure("nominatim", errors.New("second"))

	health, ok := registry.Health("nominatim")
	require.True(t, ok)
	assert.Equal(t, "second", health.LastError)
	assert.NotNil(t, health.LastFailureAt)
}

func TestProviderHealth_Status(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  string
	}{
		{gobreaker.StateClosed, "OK"},
		{gobreaker.StateHalfOpen, "DEGRADED"},
		{gobreaker.StateOpen, "DOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.ProviderHealth{CircuitState: tt.state}.Status())
		})
	}
}
