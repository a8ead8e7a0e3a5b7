package subscribers

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/spasibg/spasi-push/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS push_subscribers (
	push_token TEXT PRIMARY KEY,
	user_id    TEXT,
	city       TEXT,
	categories TEXT[] NOT NULL DEFAULT '{}',
	endpoint   TEXT NOT NULL DEFAULT '',
	p256dh     TEXT NOT NULL DEFAULT '',
	auth       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS push_subscribers_city_idx ON push_subscribers (LOWER(city));
`

const selectColumns = `push_token, user_id, city, categories, endpoint, p256dh, auth, created_at, updated_at`

// PostgresStore talks to postgres through database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	s := &PostgresStore{db: db}
	if err := s.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "migration failed")
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, sub types.Subscriber) error {
	if sub.PushToken == "" {
		return errors.New("push token is required")
	}
	categories := sub.Categories
	if categories == nil {
		categories = []string{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscribers (push_token, user_id, city, categories, endpoint, p256dh, auth, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (push_token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			city = EXCLUDED.city,
			categories = EXCLUDED.categories,
			endpoint = EXCLUDED.endpoint,
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			updated_at = NOW()`,
		sub.PushToken, sub.UserID, sub.City, pq.Array(categories), sub.Endpoint, sub.P256DH, sub.Auth,
	)
	return errors.Wrapf(err, "upserting subscriber %s", sub.PushToken)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (types.Subscriber, error) {
	var sub types.Subscriber
	var userID, city sql.NullString
	var categories pq.StringArray

	err := row.Scan(&sub.PushToken, &userID, &city, &categories, &sub.Endpoint, &sub.P256DH, &sub.Auth, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return types.Subscriber{}, err
	}
	if userID.Valid {
		sub.UserID = &userID.String
	}
	if city.Valid {
		sub.City = &city.String
	}
	if len(categories) > 0 {
		sub.Categories = []string(categories)
	}
	return sub, nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (types.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM push_subscribers WHERE push_token = $1`, token)
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return types.Subscriber{}, ErrNotFound
	}
	return sub, errors.Wrap(err, "finding subscriber")
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]types.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM push_subscribers
		 WHERE ($1 = '' OR LOWER(city) = LOWER($1))
		   AND ($2 = '' OR $2 = ANY(categories))
		 ORDER BY updated_at DESC
		 LIMIT NULLIF($3, 0) OFFSET $4`,
		f.City, f.Category, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing subscribers")
	}
	defer rows.Close()

	ret := []types.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning subscriber")
		}
		ret = append(ret, sub)
	}
	return ret, errors.Wrap(rows.Err(), "listing subscribers")
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM push_subscribers WHERE push_token = $1`, token)
	if err != nil {
		return errors.Wrap(err, "deleting subscriber")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
