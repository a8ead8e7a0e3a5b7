package pushsdk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Registration is the browser's push subscription for one installation.
type Registration struct {
	Endpoint  string    `json:"endpoint"`
	P256DH    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

func RegistrationFrom(sub webpush.Subscription) Registration {
	return Registration{
		Endpoint:  sub.Endpoint,
		P256DH:    sub.Keys.P256dh,
		Auth:      sub.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	}
}

func (r Registration) Valid() bool {
	return r.Endpoint != "" && r.P256DH != "" && r.Auth != ""
}

// Token is the opaque push token derived from the endpoint.
func (r Registration) Token() string {
	sum := sha256.Sum256([]byte(r.Endpoint))
	return "wp-" + hex.EncodeToString(sum[:16])
}

func (r Registration) Subscription() *webpush.Subscription {
	return &webpush.Subscription{
		Endpoint: r.Endpoint,
		Keys: webpush.Keys{
			P256dh: r.P256DH,
			Auth:   r.Auth,
		},
	}
}

type Registrations interface {
	Get(ctx context.Context, installation string) (Registration, bool, error)
	Put(ctx context.Context, installation string, reg Registration) error
	Delete(ctx context.Context, installation string) error
}

type MemoryRegistrations struct {
	mu   sync.RWMutex
	regs map[string]Registration
}

func NewMemoryRegistrations() *MemoryRegistrations {
	return &MemoryRegistrations{regs: map[string]Registration{}}
}

func (m *MemoryRegistrations) Get(_ context.Context, installation string) (Registration, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regs[installation]
	return r, ok, nil
}

func (m *MemoryRegistrations) Put(_ context.Context, installation string, reg Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[installation] = reg
	return nil
}

func (m *MemoryRegistrations) Delete(_ context.Context, installation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regs, installation)
	return nil
}

// RedisRegistrations stores registrations as JSON strings so every instance
// behind the load balancer sees the same browser subscription.
type RedisRegistrations struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisRegistrations(client redis.Cmdable) *RedisRegistrations {
	return &RedisRegistrations{client: client, ttl: 365 * 24 * time.Hour}
}

func (r *RedisRegistrations) key(installation string) string {
	return fmt.Sprintf("spasi:registration:%s", installation)
}

func (r *RedisRegistrations) Get(ctx context.Context, installation string) (Registration, bool, error) {
	val, err := r.client.Get(ctx, r.key(installation)).Result()
	if err == redis.Nil {
		return Registration{}, false, nil
	}
	if err != nil {
		return Registration{}, false, errors.Wrap(err, "reading registration")
	}
	var reg Registration
	if err := json.Unmarshal([]byte(val), &reg); err != nil {
		return Registration{}, false, errors.Wrap(err, "decoding registration")
	}
	return reg, true, nil
}

func (r *RedisRegistrations) Put(ctx context.Context, installation string, reg Registration) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return errors.Wrap(err, "encoding registration")
	}
	return errors.Wrap(r.client.Set(ctx, r.key(installation), data, r.ttl).Err(), "writing registration")
}

func (r *RedisRegistrations) Delete(ctx context.Context, installation string) error {
	return errors.Wrap(r.client.Del(ctx, r.key(installation)).Err(), "deleting registration")
}
