// Package gormstore keeps notices in Postgres (or SQLite for local runs and tests) through GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"nebs-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store is a domain.NoticeRepository backed by a GORM DB.
type Store struct {
	DB   *gorm.DB
	host string
}

// Open opens a GORM DB for a postgres:// or sqlite:// URI.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind poolers such as PgBouncer or Supabase.
func Open(uri string) (*gorm.DB, error) {
	scheme, rest, _ := strings.Cut(uri, "://")
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  uri,
			PreferSimpleProtocol: true,
		}), &gorm.Config{})
	case "sqlite", "file":
		path := rest
		if strings.EqualFold(scheme, "file") {
			path = uri
		}
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		// One connection so an in-memory database is shared by every query.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("gormstore: unsupported database scheme %q", scheme)
	}
}

// Connect opens the database and verifies it answers a ping.
func Connect(ctx context.Context, uri string) (*Store, error) {
	db, err := Open(uri)
	if err != nil {
		return nil, err
	}
	s := New(db)
	s.host = hostOf(uri)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an already opened DB.
func New(db *gorm.DB) *Store {
	return &Store{DB: db, host: db.Dialector.Name()}
}

func hostOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Hostname() == "" || strings.EqualFold(u.Scheme, "sqlite") {
		return "sqlite"
	}
	return u.Hostname()
}

// Host is the database host the store is connected to.
func (s *Store) Host() string { return s.host }

// Notices returns the store itself.
func (s *Store) Notices() domain.NoticeRepository { return s }

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates the notices table and its (status, created_at) index.
func (s *Store) Migrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(&domain.Notice{})
}

func (s *Store) Create(ctx context.Context, n *domain.Notice) error {
	n.Normalize()
	if n.PublishDate.IsZero() {
		n.PublishDate = time.Now().UTC()
	}
	return s.DB.WithContext(ctx).Create(n).Error
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Notice, error) {
	var n domain.Notice
	if err := s.DB.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNoticeNotFound
		}
		return nil, err
	}
	n.Normalize()
	return &n, nil
}

func filtered(f domain.NoticeFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if f.Status != "" {
			tx = tx.Where("status = ?", f.Status)
		}
		if f.NoticeType != "" {
			tx = tx.Where("notice_type = ?", f.NoticeType)
		}
		if f.TargetType != "" {
			tx = tx.Where("target_type = ?", f.TargetType)
		}
		return tx
	}
}

func (s *Store) List(ctx context.Context, f domain.NoticeFilter, skip, limit int) ([]domain.Notice, int64, error) {
	var total int64
	if err := s.DB.WithContext(ctx).Model(&domain.Notice{}).Scopes(filtered(f)).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	items := make([]domain.Notice, 0, limit)
	err := s.DB.WithContext(ctx).
		Scopes(filtered(f)).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Normalize()
	}
	return items, total, nil
}

func (s *Store) Update(ctx context.Context, id string, patch domain.NoticePatch) (*domain.Notice, error) {
	var out *domain.Notice
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n domain.Notice
		if err := tx.First(&n, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNoticeNotFound
			}
			return err
		}
		patch.Apply(&n)
		if err := tx.Save(&n).Error; err != nil {
			return err
		}
		out = &n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) (*domain.Notice, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Delete(&domain.Notice{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Notice{})
	return res.RowsAffected, res.Error
}
