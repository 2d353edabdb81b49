package core

import (
	"fmt"
	"os"
	"strconv"

	"metalcore/internal/infra/persistence/memory"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

func newMemoryStore(engine *RulesEngine) *memory.Store {
	return memory.NewStore(engine)
}

// NewMemoryStore returns an in-memory store for tests and ephemeral runs.
func NewMemoryStore(engine *RulesEngine) PersistentStore {
	return memory.NewStore(engine)
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	METALCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	METALCORE_SQLITE_PATH: path to sqlite file (default ./metalcore.db)
//	METALCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("METALCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("METALCORE_SQLITE_PATH")
		return NewSQLiteStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("METALCORE_POSTGRES_DSN")
		return NewPostgresStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// BatchSeedFromEnv reads METALCORE_BATCH_SEED, falling back to the default
// production counter seed on absence or parse failure.
func BatchSeedFromEnv() int64 {
	raw := os.Getenv("METALCORE_BATCH_SEED")
	if raw == "" {
		return DefaultBatchSeed
	}
	seed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seed <= 0 {
		return DefaultBatchSeed
	}
	return seed
}
