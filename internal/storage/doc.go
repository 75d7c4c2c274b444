// Package storage persists the reminder delivery log.
//
// Two drivers are available:
//   - "file": append-only JSON Lines next to the configured path
//   - "sqlite": a SQLite database (pure Go driver)
package storage
