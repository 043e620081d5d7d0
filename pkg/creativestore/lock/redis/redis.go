// Package redis provides a quorum lock manager over a set of independent
// Redis endpoints. A lock is held when a majority of endpoints accept it;
// every lock carries a TTL so a crashed holder cannot wedge an object
// forever.
package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultLockTTL      = 30 * time.Second
	DefaultPingInterval = 10 * time.Second
	DefaultDialTimeout  = 3 * time.Second
)

const keyPrefix = "creativestore:lock:"

// releaseScript deletes the lock key only when it still carries the holder's
// token, so an expired-and-reacquired lock is never released by the old
// holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Config options for the quorum lock manager.
type Config struct {
	Endpoints    []string // host:port per independent Redis endpoint
	Password     string
	LockTTL      time.Duration
	PingInterval time.Duration
	DialTimeout  time.Duration
}

// Manager implements creativestore.LockManager over a quorum of Redis
// endpoints. The client set is replaced wholesale by the supervisor loop;
// every lock operation works on a local snapshot, so it observes either the
// fully-old or the fully-new set, never a mix.
type Manager struct {
	config Config
	logger zerolog.Logger

	clients atomic.Pointer[[]*redis.Client]

	cancel context.CancelFunc
	done   chan struct{}
}

// New connects to the configured endpoints and starts the supervisor loop.
// At least one endpoint is required; quorum is a strict majority of the
// configured set.
func New(config Config, logger zerolog.Logger) (*Manager, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one lock endpoint is required")
	}
	if config.LockTTL == 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultDialTimeout
	}

	m := &Manager{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
	clients := m.connect()
	m.clients.Store(&clients)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.supervise(ctx)

	return m, nil
}

var _ creativestore.LockManager = (*Manager)(nil)

// Acquire takes the lock on a majority of endpoints. When the quorum is not
// reached the partial acquisition is rolled back and ErrLockAlreadyExists is
// returned.
func (m *Manager) Acquire(ctx context.Context, key string) (creativestore.Lock, error) {
	clients := *m.clients.Load()
	token := uuid.NewString()
	redisKey := keyPrefix + key

	acquired := 0
	for _, client := range clients {
		ok, err := client.SetNX(ctx, redisKey, token, m.config.LockTTL).Result()
		if err != nil {
			m.logger.Warn().Err(err).Str("endpoint", client.Options().Addr).Str("key", key).
				Msg("lock endpoint unreachable during acquire")
			continue
		}
		if ok {
			acquired++
		}
	}

	if acquired < m.quorum() {
		m.release(ctx, clients, redisKey, token)
		return nil, creativestore.ErrLockAlreadyExists
	}

	return &lock{
		manager:  m,
		clients:  clients,
		redisKey: redisKey,
		token:    token,
		key:      key,
	}, nil
}

// IsLocked reports whether a majority of endpoints currently hold the key.
func (m *Manager) IsLocked(ctx context.Context, key string) (bool, error) {
	clients := *m.clients.Load()
	redisKey := keyPrefix + key

	held, failed := 0, 0
	var lastErr error
	for _, client := range clients {
		n, err := client.Exists(ctx, redisKey).Result()
		if err != nil {
			failed++
			lastErr = err
			continue
		}
		if n > 0 {
			held++
		}
	}
	if failed == len(clients) {
		return false, lastErr
	}
	return held >= m.quorum(), nil
}

// Close stops the supervisor loop and closes the current client set.
func (m *Manager) Close() error {
	m.cancel()
	<-m.done
	closeClients(*m.clients.Load())
	return nil
}

func (m *Manager) quorum() int {
	return len(m.config.Endpoints)/2 + 1
}

func (m *Manager) connect() []*redis.Client {
	clients := make([]*redis.Client, 0, len(m.config.Endpoints))
	for _, endpoint := range m.config.Endpoints {
		clients = append(clients, redis.NewClient(&redis.Options{
			Addr:        endpoint,
			Password:    m.config.Password,
			DialTimeout: m.config.DialTimeout,
		}))
	}
	return clients
}

// supervise pings every endpoint on an interval. Any failure tears down and
// recreates the whole client set; in-flight operations keep the snapshot
// they loaded. This loop is the only writer of the client pointer.
func (m *Manager) supervise(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		clients := *m.clients.Load()
		healthy := true
		for _, client := range clients {
			if err := client.Ping(ctx).Err(); err != nil {
				m.logger.Warn().Err(err).Str("endpoint", client.Options().Addr).
					Msg("lock endpoint ping failed, rebuilding client set")
				healthy = false
				break
			}
		}
		if healthy {
			continue
		}

		fresh := m.connect()
		m.clients.Store(&fresh)
		closeClients(clients)
	}
}

// release runs the compare-and-delete script on every endpoint. Failures are
// logged only; the TTL reclaims anything left behind.
func (m *Manager) release(ctx context.Context, clients []*redis.Client, redisKey, token string) {
	for _, client := range clients {
		if err := releaseScript.Run(ctx, client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			m.logger.Warn().Err(err).Str("endpoint", client.Options().Addr).Str("key", redisKey).
				Msg("lock release failed, relying on TTL expiry")
		}
	}
}

func closeClients(clients []*redis.Client) {
	for _, client := range clients {
		_ = client.Close()
	}
}

type lock struct {
	manager  *Manager
	clients  []*redis.Client
	redisKey string
	token    string
	key      string
	once     sync.Once
}

// Release is idempotent and never fails: a backend error here must not fail
// the caller's otherwise-successful operation.
func (l *lock) Release(ctx context.Context) {
	l.once.Do(func() {
		l.manager.release(ctx, l.clients, l.redisKey, l.token)
	})
}
