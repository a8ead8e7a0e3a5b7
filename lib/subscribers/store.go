// Package subscribers persists push subscriber records keyed by push token.
package subscribers

import (
	"context"
	"errors"
	"strings"

	"github.com/spasibg/spasi-push/types"
)

var ErrNotFound = errors.New("subscriber not found")

type Filter struct {
	City     string
	Category string
	Limit    int
	Offset   int
}

func (f Filter) Matches(s types.Subscriber) bool {
	if f.City != "" && (s.City == nil || !strings.EqualFold(*s.City, f.City)) {
		return false
	}
	if f.Category != "" && !s.InCategory(f.Category) {
		return false
	}
	return true
}

type Store interface {
	// Upsert inserts s or replaces the row with the same push token.
	Upsert(ctx context.Context, s types.Subscriber) error
	Get(ctx context.Context, token string) (types.Subscriber, error)
	List(ctx context.Context, f Filter) ([]types.Subscriber, error)
	Delete(ctx context.Context, token string) error
	Close() error
}

// Open uses postgres when databaseURL is set and sqlite at dbPath otherwise.
func Open(ctx context.Context, databaseURL, dbPath string) (Store, error) {
	if databaseURL != "" {
		return OpenPostgres(ctx, databaseURL)
	}
	return OpenSQLite(dbPath)
}
