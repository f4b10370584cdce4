// Package store provides settings persistence interfaces and implementations.
package store

import "context"

// SettingsStore is a flat key/value store for user settings.
type SettingsStore interface {
	// Get returns the stored values for keys. Missing keys are absent from the map.
	Get(ctx context.Context, keys ...string) (map[string]string, error)

	// Set writes every pair in values, replacing existing entries.
	Set(ctx context.Context, values map[string]string) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
