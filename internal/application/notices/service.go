package notices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nebs-backend/internal/domain"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrDatabaseUnavailable means no live database connection could serve the call.
var ErrDatabaseUnavailable = errors.New("database unavailable")

// RepositorySource hands out the repository of the current connection (database.Manager).
type RepositorySource interface {
	Notices() (domain.NoticeRepository, error)
}

// Static is a RepositorySource with a fixed repository.
type Static struct {
	Repo domain.NoticeRepository
}

func (s Static) Notices() (domain.NoticeRepository, error) { return s.Repo, nil }

// Service encapsulates notice logic.
type Service struct {
	Repos RepositorySource
}

// ListParams are the query options of a listing.
type ListParams struct {
	Page   int
	Limit  int
	Filter domain.NoticeFilter
}

// Pagination describes the returned page.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ListResult is the paginated list payload.
type ListResult struct {
	Data       []domain.Notice `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

func (s *Service) repo() (domain.NoticeRepository, error) {
	r, err := s.Repos.Notices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	if r == nil {
		return nil, ErrDatabaseUnavailable
	}
	return r, nil
}

// Create stores a new notice, defaulting status to draft, creator to system and publish date to now.
func (s *Service) Create(ctx context.Context, n *domain.Notice) (*domain.Notice, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	n.ID = ""
	if n.PublishDate.IsZero() {
		n.PublishDate = time.Now().UTC()
	}
	n.Normalize()
	if err := r.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Notice, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// List returns a page of notices, newest first.
func (s *Service) List(ctx context.Context, p ListParams) (*ListResult, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	page, limit := p.Page, p.Limit
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	items, total, err := r.List(ctx, p.Filter, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Notice{}
	}
	return &ListResult{
		Data: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

// Update applies a partial update; attachments are replaced only when the patch carries some.
func (s *Service) Update(ctx context.Context, id string, patch domain.NoticePatch) (*domain.Notice, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.Update(ctx, id, patch)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.NoticeStatus) (*domain.Notice, error) {
	r, err := s.repo()
	if err != nil {
		return nil, err
	}
	return r.Update(ctx, id, domain.NoticePatch{Status: &status})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	r, err := s.repo()
	if err != nil {
		return err
	}
	_, err = r.Delete(ctx, id)
	return err
}
