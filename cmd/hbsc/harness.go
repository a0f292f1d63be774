package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/hbsc/energy"
	"codeberg.org/mutker/hbsc/hbsc"
	"codeberg.org/mutker/hbsc/heartbeat"
	"codeberg.org/mutker/hbsc/internal/config"
	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
	"codeberg.org/mutker/hbsc/internal/report"
	"codeberg.org/mutker/hbsc/internal/store"
	"github.com/google/uuid"
)

const logDirPerm = 0o755

// harness runs heartbeat sessions for each configured variant and stores
// completed windows under one run ID.
type harness struct {
	cfg       config.Provider
	log       logger.Logger
	runID     string
	meterName string
	meter     energy.Factory
	recorder  store.Recorder
}

func newHarness(cfg config.Provider, log logger.Logger) (*harness, error) {
	errFactory := errors.New()

	meter, err := energy.Lookup(cfg.GetMeter(), energy.WithSysfsRoot(cfg.GetRAPLRoot()))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	if dir := cfg.GetLogDir(); dir != "" {
		if err := os.MkdirAll(dir, logDirPerm); err != nil {
			return nil, errFactory.Wrap(errors.ErrInitApp, err)
		}
	}

	recorder, err := store.NewService(storeConfig(cfg), log.With("store"))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	h := &harness{
		cfg:       cfg,
		log:       log,
		runID:     uuid.NewString(),
		meterName: cfg.GetMeter(),
		meter:     meter,
		recorder:  recorder,
	}

	log.Info().
		Str("run_id", h.runID).
		Str("meter", cfg.GetMeter()).
		Uint64("window", cfg.GetWindow()).
		Uint64("iterations", cfg.GetIterations()).
		Strs("variants", cfg.GetVariants()).
		Bool("metrics", cfg.IsMetricsEnabled()).
		Msg("Harness initialized")

	return h, nil
}

func (h *harness) runAll(ctx context.Context) []report.Result {
	variants := h.cfg.GetVariants()
	results := make([]report.Result, 0, len(variants))

	for _, name := range variants {
		kind, err := heartbeat.ParseKind(name)
		if err != nil {
			results = append(results, report.Result{Variant: kind, Err: err})
			continue
		}

		r := h.runVariant(ctx, kind)
		if r.Err != nil {
			h.log.Error().Err(r.Err).Str("variant", kind.String()).Msg("Variant failed")
		} else {
			h.log.Info().
				Str("variant", kind.String()).
				Uint64("heartbeats", r.Stats.Heartbeats).
				Float64("perf", r.Stats.Perf.Global).
				Dur("elapsed", r.Elapsed).
				Msg("Variant finished")
		}
		results = append(results, r)
	}

	return results
}

func (h *harness) runVariant(ctx context.Context, kind heartbeat.Kind) report.Result {
	errFactory := errors.New()
	result := report.Result{Variant: kind}
	if kind.TracksEnergy() {
		result.Meter = h.meterName
	}

	var hookErr error
	opts := []hbsc.Option{
		hbsc.WithLogger(h.log.With("hbsc")),
		hbsc.WithMeterFactory(h.meter),
		hbsc.WithWindowCompleteHook(func(c *heartbeat.Context) {
			w := store.NewWindow(h.runID, c.Stats(), time.Now())
			if err := h.recorder.Record(ctx, w); err != nil && hookErr == nil {
				hookErr = err
			}
		}),
	}
	if dir := h.cfg.GetLogDir(); dir != "" {
		result.LogPath = filepath.Join(dir, fmt.Sprintf("heartbeat-%s.log", kind))
		opts = append(opts, hbsc.WithLogPath(result.LogPath))
	}

	start := time.Now()
	s, err := hbsc.Open(kind, h.cfg.GetWindow(), opts...)
	if err != nil {
		result.Err = errFactory.Wrap(errors.ErrRunVariant, err)
		return result
	}

	var beatErr error
	work, accuracy := h.cfg.GetWork(), h.cfg.GetAccuracy()
	for i := uint64(0); i < h.cfg.GetIterations(); i++ {
		if err := ctx.Err(); err != nil {
			beatErr = errFactory.Wrap(errors.ErrTimeout, err)
			break
		}
		if kind.TracksAccuracy() {
			beatErr = s.HeartbeatAccuracy(i, work, accuracy)
		} else {
			beatErr = s.Heartbeat(i, work)
		}
		if beatErr != nil {
			break
		}
	}

	closeErr := s.Close()
	result.Elapsed = time.Since(start)
	result.Stats, _ = s.Stats()

	if err := errFactory.Join(errors.ErrRunVariant, beatErr, closeErr, hookErr); err != nil {
		result.Err = err
	}

	return result
}

// storeConfig starts from the store defaults and applies the configured
// database settings when metrics are enabled.
func storeConfig(cfg config.Provider) store.Config {
	sc := store.DefaultConfig()
	if !cfg.IsMetricsEnabled() {
		return sc
	}

	sc.Enabled = true
	sc.DBPath = cfg.GetMetricsDBPath()
	if size := cfg.GetBatchSize(); size > 0 {
		sc.BatchSize = size
	}
	if timeout := cfg.GetBatchTimeout(); timeout > 0 {
		sc.BatchTimeout = timeout
	}
	return sc
}

func (h *harness) close() error {
	return h.recorder.Close()
}
