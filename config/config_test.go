package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GIN_MODE", "release")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "memory", c.StoreDriver)
	assert.Equal(t, 10*time.Second, c.PerceptionTimeout)
	assert.Equal(t, 5*time.Second, c.NarrativeTimeout)
	assert.Equal(t, "mongodb://localhost:27017", c.MongoURI)
	assert.Equal(t, uint64(5), c.NotifyMaxRetries)
	assert.False(t, c.FirebaseEnabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("CIVICPULSE_PORT", "9090")
	t.Setenv("CIVICPULSE_STORE_DRIVER", "sqlite")
	t.Setenv("CIVICPULSE_NARRATIVE_TIMEOUT", "750ms")
	t.Setenv("CIVICPULSE_FIREBASE_PROJECT_ID", "civic-test")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, 750*time.Millisecond, c.NarrativeTimeout)
	assert.True(t, c.FirebaseEnabled())
}
