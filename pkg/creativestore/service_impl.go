package creativestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied by New when the corresponding option is absent.
const (
	DefaultSessionTTL       = 12 * time.Hour
	DefaultFetchConcurrency = 8
)

// service implements the Service interface.
type service struct {
	objects   VersionedBlobStore
	templates VersionedBlobStore
	sessions  VersionedBlobStore
	content   VersionedBlobStore
	locks     LockManager
	eventSink EventSink
	logger    zerolog.Logger

	sessionTTL       time.Duration
	fetchConcurrency int
}

// Option represents a functional option for configuring the service.
type Option func(*service)

// WithObjectStore sets the bucket holding object headers and elements.
func WithObjectStore(store VersionedBlobStore) Option {
	return func(s *service) { s.objects = store }
}

// WithTemplateStore sets the bucket holding template descriptors.
func WithTemplateStore(store VersionedBlobStore) Option {
	return func(s *service) { s.templates = store }
}

// WithSessionStore sets the bucket holding session descriptors and staged
// uploads.
func WithSessionStore(store VersionedBlobStore) Option {
	return func(s *service) { s.sessions = store }
}

// WithContentStore sets the bucket holding permanent content-addressed blobs.
func WithContentStore(store VersionedBlobStore) Option {
	return func(s *service) { s.content = store }
}

// WithLockManager sets the distributed lock manager guarding the write path.
func WithLockManager(locks LockManager) Option {
	return func(s *service) { s.locks = locks }
}

// WithEventSink sets the event sink for lifecycle notifications.
func WithEventSink(sink EventSink) Option {
	return func(s *service) { s.eventSink = sink }
}

// WithLogger sets the logger handle. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithSessionTTL sets the lifetime of newly created upload sessions.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *service) { s.sessionTTL = ttl }
}

// WithFetchConcurrency bounds the per-request fan-out used when fetching
// element sub-objects and version details.
func WithFetchConcurrency(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// New creates a new service instance with the given options.
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:        NewNoopEventSink(),
		logger:           zerolog.Nop(),
		sessionTTL:       DefaultSessionTTL,
		fetchConcurrency: DefaultFetchConcurrency,
	}

	for _, option := range options {
		option(s)
	}

	if s.objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if s.templates == nil {
		return nil, fmt.Errorf("template store is required")
	}
	if s.sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if s.content == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if s.locks == nil {
		return nil, fmt.Errorf("lock manager is required")
	}

	return s, nil
}

// Lock key namespaces: objects and templates contend independently.
func objectLockKey(id int64) string   { return fmt.Sprintf("object/%d", id) }
func templateLockKey(id int64) string { return fmt.Sprintf("template/%d", id) }

// mapNotFound rewrites the storage-level absence signal into an
// entity-specific error kind, leaving everything else untouched.
func mapNotFound(err, kind error) error {
	if errors.Is(err, ErrNotFound) {
		return kind
	}
	return err
}

func (s *service) fireEvent(ctx context.Context, op string, fire func() error) {
	if err := fire(); err != nil {
		s.logger.Warn().Err(err).Str("event", op).Msg("event delivery failed")
	}
}
