package store

import (
	"context"

	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
)

type service struct {
	repo Repository
	log  logger.Logger
}

type noopRecorder struct{}

// NewService returns a Recorder backed by sqlite, or a no-op recorder when
// the store is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Window store disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create window repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Msg("Window store initialized")

	return &service{repo: repo, log: log}, nil
}

func (s *service) Record(ctx context.Context, w *Window) error {
	errFactory := errors.New()

	if w == nil || w.RunID == "" {
		return errFactory.New(ErrInvalidWindow)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(w); err != nil {
			return errFactory.Wrap(ErrRecordWindow, err)
		}
	}

	return nil
}

// Close returns the repository's ErrStorageClose error unchanged.
func (s *service) Close() error {
	return s.repo.Close()
}

func (*noopRecorder) Record(context.Context, *Window) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
