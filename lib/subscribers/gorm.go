package subscribers

import (
	"context"
	"time"

	_ "github.com/ncruces/go-sqlite3/embed"
	sqlite "github.com/ncruces/go-sqlite3/gormlite"
	"github.com/pkg/errors"
	"github.com/spasibg/spasi-push/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var upsertColumns = []string{"user_id", "city", "categories", "endpoint", "p256dh", "auth", "updated_at"}

type GormStore struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}
	return NewGormStore(db)
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&types.Subscriber{}); err != nil {
		return nil, errors.Wrap(err, "Failed to migrate")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Upsert(ctx context.Context, sub types.Subscriber) error {
	if sub.PushToken == "" {
		return errors.New("push token is required")
	}
	sub.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "push_token"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&sub).Error
	return errors.Wrapf(err, "upserting subscriber %s", sub.PushToken)
}

func (s *GormStore) Get(ctx context.Context, token string) (types.Subscriber, error) {
	var sub types.Subscriber
	err := s.db.WithContext(ctx).First(&sub, "push_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Subscriber{}, ErrNotFound
	}
	return sub, errors.Wrap(err, "finding subscriber")
}

// List filters in Go: sqlite's LOWER only folds ASCII and the JSON encoded
// categories column escapes characters such as '&', so neither can be matched
// in SQL the way Filter.Matches does.
func (s *GormStore) List(ctx context.Context, f Filter) ([]types.Subscriber, error) {
	var found []types.Subscriber
	err := s.db.WithContext(ctx).Model(&types.Subscriber{}).Order("updated_at DESC, push_token").Find(&found).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing subscribers")
	}

	ret := make([]types.Subscriber, 0, len(found))
	skip := f.Offset
	for _, sub := range found {
		if !f.Matches(sub) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		ret = append(ret, sub)
		if f.Limit > 0 && len(ret) == f.Limit {
			break
		}
	}
	return ret, nil
}

func (s *GormStore) Delete(ctx context.Context, token string) error {
	res := s.db.WithContext(ctx).Delete(&types.Subscriber{}, "push_token = ?", token)
	if res.Error != nil {
		return errors.Wrap(res.Error, "deleting subscriber")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
