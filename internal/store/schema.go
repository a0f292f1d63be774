package store

import (
	"database/sql"

	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS windows (
	       id                INTEGER PRIMARY KEY AUTOINCREMENT,
	       run_id            TEXT NOT NULL,
	       variant           TEXT NOT NULL CHECK (variant IN ('base', 'accuracy', 'power', 'accuracy-power')),
	       window_index      INTEGER NOT NULL CHECK (typeof(window_index) = 'integer'),
	       heartbeats        INTEGER NOT NULL CHECK (typeof(heartbeats) = 'integer'),
	       timestamp         INTEGER NOT NULL,
	       perf_global       REAL NOT NULL,
	       perf_window       REAL NOT NULL,
	       perf_instant      REAL NOT NULL,
	       accuracy_global   REAL NOT NULL,
	       accuracy_window   REAL NOT NULL,
	       accuracy_instant  REAL NOT NULL,
	       power_global      REAL NOT NULL,
	       power_window      REAL NOT NULL,
	       power_instant     REAL NOT NULL,
	       latency_p50       INTEGER NOT NULL,
	       latency_p99       INTEGER NOT NULL,
	       UNIQUE (run_id, variant, window_index)
	   );
	   CREATE INDEX IF NOT EXISTS windows_run_id ON windows (run_id);`

	insertWindowSQL = `
    INSERT INTO windows (
        run_id, variant, window_index, heartbeats, timestamp,
        perf_global, perf_window, perf_instant,
        accuracy_global, accuracy_window, accuracy_instant,
        power_global, power_window, power_instant,
        latency_p50, latency_p99
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectWindowsSQL = `
    SELECT
        run_id, variant, window_index, heartbeats, timestamp,
        perf_global, perf_window, perf_instant,
        accuracy_global, accuracy_window, accuracy_instant,
        power_global, power_window, power_instant,
        latency_p50, latency_p99
    FROM windows
    WHERE run_id = ?
    ORDER BY id`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty
// database
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
