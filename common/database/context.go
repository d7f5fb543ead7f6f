// Package database holds the per-operation deadlines applied to store calls.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds a single read (page, count, group-by).
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a single upsert.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultMigrateTimeout bounds schema migrations at startup.
	DefaultMigrateTimeout = 60 * time.Second
)

// Timeouts configures store deadlines. Zero values fall back to the defaults.
type Timeouts struct {
	Query time.Duration
	Write time.Duration
}

// QueryContext derives a read deadline from parent. A cancelled parent (an
// abandoned HTTP request) still cancels the query immediately.
func (t Timeouts) QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	d := t.Query
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(parent, d)
}

// WriteContext derives a write deadline from parent.
func (t Timeouts) WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	d := t.Write
	if d <= 0 {
		d = DefaultWriteTimeout
	}
	return context.WithTimeout(parent, d)
}

// QueryContext applies DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return Timeouts{}.QueryContext(parent)
}

// WriteContext applies DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return Timeouts{}.WriteContext(parent)
}

// MigrateContext applies DefaultMigrateTimeout.
func MigrateContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultMigrateTimeout)
}
