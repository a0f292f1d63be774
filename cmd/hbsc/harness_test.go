package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/hbsc/heartbeat"
	"codeberg.org/mutker/hbsc/internal/config"
	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
	"codeberg.org/mutker/hbsc/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		Window:       10,
		Iterations:   20,
		Work:         1,
		Accuracy:     1,
		LogDir:       filepath.Join(dir, "logs"),
		Variants:     []string{"base", "accuracy", "power", "accuracy-power"},
		Meter:        "dummy",
		RAPLRoot:     filepath.Join(dir, "sys"),
		LogLevel:     config.LogLevelWarning,
		Metrics:      true,
		MetricsDB:    filepath.Join(dir, "windows.db"),
		BatchSize:    3,
		BatchTimeout: time.Hour,
	}
}

func TestHarnessRunsEveryVariant(t *testing.T) {
	cfg := testConfig(t)

	h, err := newHarness(cfg, logger.Default())
	require.NoError(t, err)

	results := h.runAll(context.Background())
	require.NoError(t, h.close())
	require.Len(t, results, 4)
	assert.False(t, failed(results))

	for i, r := range results {
		assert.Equal(t, heartbeat.Kinds[i], r.Variant)
		assert.Equal(t, uint64(19), r.Stats.Heartbeats)
		assert.Equal(t, uint64(1), r.Stats.Windows)

		data, err := os.ReadFile(r.LogPath)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, 20, "header plus 19 records for %s", r.Variant)
		assert.Len(t, strings.Split(lines[1], "\t"), len(heartbeat.Columns(r.Variant)))
	}

	repo, err := store.NewRepository(store.Config{DBPath: cfg.MetricsDB}, logger.Default())
	require.NoError(t, err)
	defer repo.Close()

	windows, err := repo.Windows(context.Background(), h.runID)
	require.NoError(t, err)
	require.Len(t, windows, 4)
	for i, w := range windows {
		assert.Equal(t, heartbeat.Kinds[i].String(), w.Variant)
		assert.Equal(t, uint64(10), w.Heartbeats)
	}
}

func TestHarnessWithoutLogsOrMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogDir = ""
	cfg.Metrics = false
	cfg.Variants = []string{"acc"}

	h, err := newHarness(cfg, logger.Default())
	require.NoError(t, err)

	results := h.runAll(context.Background())
	require.NoError(t, h.close())
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Empty(t, results[0].LogPath)
	assert.NoFileExists(t, cfg.MetricsDB)
}

func TestHarnessMeterFailureOnlyFailsEnergyVariants(t *testing.T) {
	cfg := testConfig(t)
	cfg.Meter = "rapl"
	cfg.Metrics = false

	h, err := newHarness(cfg, logger.Default())
	require.NoError(t, err)

	results := h.runAll(context.Background())
	require.NoError(t, h.close())
	require.Len(t, results, 4)

	for _, r := range results {
		if r.Variant.TracksEnergy() {
			require.Error(t, r.Err)
			assert.True(t, errors.HasCode(r.Err, "hbsc_meter_init_failed"))
			assert.Equal(t, "rapl", r.Meter)
		} else {
			assert.NoError(t, r.Err)
		}
	}
	assert.True(t, failed(results))
}

func TestHarnessCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics = false
	cfg.Variants = []string{"base"}

	h, err := newHarness(cfg, logger.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := h.runAll(ctx)
	require.NoError(t, h.close())
	require.Len(t, results, 1)
	assert.Equal(t, errors.ErrRunVariant, errors.CodeOf(results[0].Err))
	assert.True(t, errors.HasCode(results[0].Err, errors.ErrTimeout))
}

func TestNewHarnessUnknownMeter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Meter = "wattmeter"

	_, err := newHarness(cfg, logger.Default())
	assert.Equal(t, errors.ErrInitApp, errors.CodeOf(err))
}

func TestStoreConfigFromProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics = false
	assert.Equal(t, store.DefaultConfig(), storeConfig(cfg))

	cfg.Metrics = true
	sc := storeConfig(cfg)
	assert.True(t, sc.Enabled)
	assert.Equal(t, cfg.MetricsDB, sc.DBPath)
	assert.Equal(t, 3, sc.BatchSize)
	assert.Equal(t, time.Hour, sc.BatchTimeout)

	cfg.BatchSize = 0
	cfg.BatchTimeout = 0
	sc = storeConfig(cfg)
	assert.Equal(t, store.DefaultConfig().BatchSize, sc.BatchSize)
	assert.Equal(t, store.DefaultConfig().BatchTimeout, sc.BatchTimeout)
}
