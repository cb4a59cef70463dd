// Package stores provides the persistence layer for openrollout. It includes
// a SQLite-backed telemetry sink with WAL mode, embedded schema migrations,
// and queryable deployment history across runs.
package stores
