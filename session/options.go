package session

import (
	"log/slog"

	"github.com/tablewait/waitlist-admin/storage"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithProfile scopes every persisted key to the named API profile.
func WithProfile(name string) Option {
	return func(m *Manager) {
		m.storeOpts = []storage.Option{storage.WithProfile(name)}
	}
}
