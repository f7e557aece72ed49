package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("CORPUS_URL", "file:///data/corpus.txt")
	t.Setenv("METADATA_URL", "file:///data/metadata.json")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "palimpsest", cfg.MongoDBName)
	assert.Equal(t, MetadataFromURL, cfg.MetadataSource)
	assert.Equal(t, 20, cfg.DefaultMinWords)
	assert.Equal(t, 2, cfg.MaxConcurrentRuns)
	assert.Equal(t, 30*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 24*time.Hour, cfg.StreamRetentionDuration)
	assert.True(t, cfg.ParallelMatching)
	assert.Equal(t, "2112", cfg.MetricsPort)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_MIN_WORDS", "12")
	t.Setenv("PARALLEL_MATCHING", "false")
	t.Setenv("RUN_TIMEOUT_MINUTES", "5")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("MATCH_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.DefaultMinWords)
	assert.False(t, cfg.ParallelMatching)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 0, cfg.MatchWorkers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{name: "missing corpus", env: map[string]string{"CORPUS_URL": ""}, errMsg: "CORPUS_URL"},
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}, errMsg: "JWT_SECRET"},
		{name: "metadata url needed", env: map[string]string{"METADATA_URL": ""}, errMsg: "METADATA_URL"},
		{name: "metadata from mongo", env: map[string]string{"METADATA_URL": "", "METADATA_SOURCE": "mongo"}},
		{name: "unknown metadata source", env: map[string]string{"METADATA_SOURCE": "ftp"}, errMsg: "METADATA_SOURCE"},
		{name: "zero window", env: map[string]string{"DEFAULT_MIN_WORDS": "0"}, errMsg: "DEFAULT_MIN_WORDS"},
		{name: "no run slots", env: map[string]string{"MAX_CONCURRENT_RUNS": "0"}, errMsg: "MAX_CONCURRENT_RUNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
