// Package storage provides the key-value persistence used to keep a client
// session across process restarts.
package storage

import (
	"context"
	"errors"
	"time"
)

// Well-known keys written by the session manager.
const (
	KeyToken            = "token"
	KeyActiveBusinessID = "activeBusinessId"
)

// Storage defines the primary interface for session persistence.
type Storage interface {
	// Get retrieves data for a specific key within the given namespace
	// Returns nil Item if key doesn't exist or has expired
	// Returns error only for legitimate storage system failures
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data for a specific key within the given namespace
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data within the given namespace
	// If no key specified via WithKey, removes entire namespace
	Delete(ctx context.Context, opts ...Option) error

	// Close closes the storage backend and releases resources
	Close() error
}

// Watcher is implemented by backends that can report changes made by other
// processes sharing the same storage.
type Watcher interface {
	// Watch returns a channel that receives a signal after the underlying
	// storage changed. The channel is closed when ctx is done.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Item represents a stored piece of data with metadata
type Item struct {
	Data      []byte     // The stored data
	CreatedAt time.Time  // When the item was created
	ExpiresAt *time.Time // When the item expires (nil = no expiration)
}

// IsExpired checks if the item has expired
func (si *Item) IsExpired() bool {
	return si.ExpiresAt != nil && time.Now().After(*si.ExpiresAt)
}

// Option configures storage operations
type Option func(*Options)

// Options contains configuration for storage operations
type Options struct {
	Namespace Namespace      // Optional: specifies the storage namespace (nil = default profile)
	Key       *string        // Optional: specific key (for Delete operations)
	TTL       *time.Duration // Optional: time-to-live for the data
}

// Apply folds opts into a fresh Options value.
func Apply(opts ...Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Namespace represents a storage namespace.
// If nil, storage operates in the default profile.
type Namespace interface {
	namespace() // private method to ensure only our types implement this
}

// ProfileNamespace isolates the session of one API profile (for example a
// staging and a production endpoint used from the same machine).
type ProfileNamespace struct {
	Profile string
}

func (ProfileNamespace) namespace() {}

// NamespaceName returns the flat name backends use to group keys.
func NamespaceName(ns Namespace) string {
	if p, ok := ns.(ProfileNamespace); ok && p.Profile != "" {
		return "profile:" + p.Profile
	}
	return "profile:default"
}

// WithProfile specifies the profile namespace.
func WithProfile(profile string) Option {
	return func(opts *Options) {
		if profile == "" {
			opts.Namespace = nil
			return
		}
		opts.Namespace = ProfileNamespace{Profile: profile}
	}
}

// WithKey specifies a specific key for Delete operations
// If not provided, Delete removes the entire namespace
func WithKey(key string) Option {
	return func(opts *Options) {
		opts.Key = &key
	}
}

// WithTTL sets a time-to-live for the stored data
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

// Error types
var (
	// ErrInvalidOptions is returned when incompatible options are provided
	ErrInvalidOptions = errors.New("storage: invalid option combination")
)

// GetString is a convenience wrapper returning the item as a string.
func GetString(ctx context.Context, s Storage, key string, opts ...Option) (string, bool, error) {
	item, err := s.Get(ctx, key, opts...)
	if err != nil || item == nil {
		return "", false, err
	}
	return string(item.Data), true, nil
}
