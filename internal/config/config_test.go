package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 12, cfg.Board.Zones)
	assert.Equal(t, AllocatorSQL, cfg.Production.Allocator)
	assert.Equal(t, "production", cfg.Production.SequenceName)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("visibility:\n  unrestricted_agents: [dispatcher]\n"))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Board.Zones)
	assert.True(t, cfg.Unrestricted("dispatcher"))
	assert.False(t, cfg.Unrestricted("someone"))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"zones":       "board:\n  zones: 0\n",
		"too many":    "board:\n  zones: 500\n",
		"allocator":   "production:\n  allocator: etcd\n",
		"redis url":   "production:\n  allocator: redis\n",
		"webhook":     "webhooks:\n  - url: not-a-url\n",
		"empty id":    "visibility:\n  unrestricted_agents: [\"\"]\n",
		"bad yaml":    "board: [",
		"neg timeout": "webhooks:\n  - url: http://example.com/hook\n    timeout_seconds: -1\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestFromYAMLRedisAndWebhooks(t *testing.T) {
	raw := `board:
  zones: 4
production:
  allocator: redis
  redis_url: redis://localhost:6379/0
webhooks:
  - url: https://warehouse.example.com/hooks/lines
    events: [schedule.produced]
    secret: s3cret
`
	cfg, err := FromYAML([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Board.Zones)
	assert.Equal(t, AllocatorRedis, cfg.Production.Allocator)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"schedule.produced"}, cfg.Webhooks[0].Events)
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "distline.yml"), []byte(GenerateDefault()), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 12, cfg.Board.Zones)
}
