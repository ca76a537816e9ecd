package config

import (
	"os"
	"path/filepath"
	"testing"

	"darkmatter/internal/finding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Setenv("DARKMATTER_WORKERS", "")
	t.Setenv("DARKMATTER_DB", "")
	t.Setenv("DARKMATTER_DETECTORS", "")
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join("testdata", "darkmatter.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"fixtures", "migrations"}, cfg.Scan.Ignore)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, []string{"magic-constant", "silent-failure"}, cfg.Detectors)
	assert.Equal(t, "/tmp/dm.db", cfg.History.DB)

	t.Run("Detector options", func(t *testing.T) {
		opts := cfg.DetectorOptions()
		assert.Equal(t, []string{"warmup"}, opts.HyperparameterNames)
		assert.Equal(t, []string{"dumps"}, opts.SideEffectNames)
		assert.Equal(t, []string{"alert"}, opts.LoggingNames)
	})

	t.Run("Weights merge onto defaults", func(t *testing.T) {
		w, err := cfg.ScoringWeights()
		require.NoError(t, err)
		assert.Equal(t, 5.0, w.Weight(finding.KindMagicConstant, finding.SeverityHigh))
		assert.Equal(t, 1.5, w.Weight(finding.KindMagicConstant, finding.SeverityMedium))
		assert.Equal(t, 0.0, w.Weight(finding.KindSilentFailure, finding.SeverityLow))
		assert.Equal(t, 2.0, w.Weight(finding.KindPhantomLoop, finding.SeverityMedium))
	})
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Empty(t, cfg.Detectors)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DARKMATTER_WORKERS", "8")
	t.Setenv("DARKMATTER_DB", "override.db")
	t.Setenv("DARKMATTER_DETECTORS", "phantom-loop, dead-computation")

	cfg, err := LoadConfig(filepath.Join("testdata", "darkmatter.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, "override.db", cfg.History.DB)
	assert.Equal(t, []string{"phantom-loop", "dead-computation"}, cfg.Detectors)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown detector": "detectors: [consciousness]\n",
		"unknown weight":   "weights:\n  magic-constant:\n    extreme: 9\n",
		"negative weight":  "weights:\n  phantom-loop:\n    low: -1\n",
		"negative workers": "scan:\n  workers: -2\n",
		"malformed yaml":   "scan: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "cfg.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	t.Run("bad worker env", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DARKMATTER_WORKERS", "many")
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
