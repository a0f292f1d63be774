package store

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/hbsc/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 64
	defaultBatchTimeout = 5 * time.Second
	backupDirName       = "backups"
)

type Config struct {
	DBPath       string
	BatchSize    int
	BatchTimeout time.Duration
	// BackupDir receives a copy of the database before an incompatible
	// schema is replaced. Defaults to a "backups" directory next to DBPath.
	BackupDir string
	Enabled   bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate when the store is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be positive")
	}
	if c.BatchTimeout <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch timeout must be positive")
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}
