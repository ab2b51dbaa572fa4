package database

import (
	"context"
	"fmt"
	"strings"

	"nebs-backend/internal/infrastructure/database/gormstore"
	"nebs-backend/internal/infrastructure/database/mongostore"
)

// Dialer picks a store implementation from the URI scheme.
type Dialer struct {
	// DatabaseName overrides the database named in a MongoDB URI.
	DatabaseName string
	// AutoMigrate creates tables and indexes after every successful dial.
	AutoMigrate bool
}

func (d Dialer) Connect(ctx context.Context, uri string, onLost func(error)) (Conn, error) {
	c, err := d.dial(ctx, uri, onLost)
	if err != nil || !d.AutoMigrate {
		return c, err
	}
	if err := c.Notices().Migrate(ctx); err != nil {
		closeQuietly(c)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

func (d Dialer) dial(ctx context.Context, uri string, onLost func(error)) (Conn, error) {
	scheme, _, ok := strings.Cut(uri, ":")
	if !ok {
		return nil, fmt.Errorf("database URI has no scheme")
	}
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		s, err := mongostore.Connect(ctx, uri, d.DatabaseName, onLost)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql", "sqlite", "file":
		// The SQL pool reconnects on its own, so there is nothing to observe.
		s, err := gormstore.Connect(ctx, uri)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}
