package store

import "codeberg.org/mutker/hbsc/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("store_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("store_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("store_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("store_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitStore
	ErrStorageQuery = errors.ErrorCode("store_query_failed")
	ErrStorageClose = errors.ErrCloseStore
	ErrClosed       = errors.ErrorCode("store_closed")

	// Collection Errors
	ErrRecordWindow  = errors.ErrRecordWindow
	ErrInvalidWindow = errors.ErrorCode("store_invalid_window")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
