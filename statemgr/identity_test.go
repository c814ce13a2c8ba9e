package statemgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBookieID_AdvertisedAddress(t *testing.T) {
	id, err := resolveBookieID("10.0.0.5", 3181)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:3181", id)
}

func TestResolveBookieID_AdvertisedHostname(t *testing.T) {
	id, err := resolveBookieID("bookie-7.example.com", 3182)
	require.NoError(t, err)
	assert.Equal(t, "bookie-7.example.com:3182", id)
}
