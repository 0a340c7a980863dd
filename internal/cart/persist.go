package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// ErrCorrupt means the stored snapshot exists but cannot be decoded.
var ErrCorrupt = errors.New("cart snapshot corrupt")

// Persister is the durable home of one cart. A missing cart reads as an empty
// Snapshot with a nil error.
type Persister interface {
	Read(ctx context.Context) (Snapshot, error)
	Write(ctx context.Context, s Snapshot) error
}

// MemoryPersister keeps the encoded snapshot in memory; Raw lets tests plant bad data.
type MemoryPersister struct {
	mu  sync.Mutex
	Raw []byte
	// FailWrites makes every Write return this error.
	FailWrites error
}

func (m *MemoryPersister) Read(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decode(m.Raw)
}

func (m *MemoryPersister) Write(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.Raw = b
	return nil
}

// RedisPersister stores the cart under cart:{session}; every write refreshes the TTL.
type RedisPersister struct {
	rdb     *redis.Client
	session string
	ttl     time.Duration
}

func NewRedisPersister(rdb *redis.Client, session string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{rdb: rdb, session: session, ttl: ttl}
}

func (p *RedisPersister) key() string { return fmt.Sprintf(redisx.KeyCart, p.session) }

func (p *RedisPersister) Read(ctx context.Context) (Snapshot, error) {
	b, err := p.rdb.Get(ctx, p.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return decode(b)
}

func (p *RedisPersister) Write(ctx context.Context, s Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.key(), b, p.ttl).Err()
}

// Delete drops the cart outright; used after checkout.
func (p *RedisPersister) Delete(ctx context.Context) error {
	return p.rdb.Del(ctx, p.key()).Err()
}

func decode(b []byte) (Snapshot, error) {
	if len(b) == 0 {
		return Snapshot{}, nil
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}
