package notices

import (
	"context"
	"errors"
	"testing"
	"time"

	"nebs-backend/internal/domain"
	"nebs-backend/internal/infrastructure/database/gormstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := gormstore.Open("sqlite://:memory:")
	require.NoError(t, err)
	store := gormstore.New(db)
	require.NoError(t, store.Migrate(context.Background()))
	return &Service{Repos: Static{Repo: store}}
}

type unavailable struct{}

func (unavailable) Notices() (domain.NoticeRepository, error) {
	return nil, errors.New("database not connected")
}

func newNotice(title string) *domain.Notice {
	return &domain.Notice{
		TargetDepartmentOrIndividual: "Sales",
		TargetType:                   domain.TargetDepartment,
		NoticeTitle:                  title,
		NoticeType:                   "Warning",
		NoticeBody:                   "Please read",
	}
}

func TestCreate_Defaults(t *testing.T) {
	svc := setupService(t)
	n, err := svc.Create(context.Background(), newNotice("Q1 targets"))
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, domain.StatusDraft, n.Status)
	assert.Equal(t, "system", n.CreatedBy)
	assert.WithinDuration(t, time.Now(), n.PublishDate, time.Minute)
	assert.Empty(t, n.Attachments)
}

func TestList_Pagination(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := svc.Create(ctx, newNotice("n"))
		require.NoError(t, err)
	}

	res, err := svc.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Len(t, res.Data, DefaultLimit)
	assert.Equal(t, Pagination{Page: 1, Limit: 10, Total: 12, TotalPages: 2}, res.Pagination)

	res, err = svc.List(ctx, ListParams{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Data, 2)

	res, err = svc.List(ctx, ListParams{Page: 1, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, res.Pagination.Limit)

	res, err = svc.List(ctx, ListParams{Filter: domain.NoticeFilter{Status: domain.StatusPublished}})
	require.NoError(t, err)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.Pagination.TotalPages)
}

func TestUpdateStatus_AndNotFound(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	n, err := svc.Create(ctx, newNotice("Launch"))
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, n.ID, domain.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, got.Status)
	assert.Equal(t, "Launch", got.NoticeTitle)

	_, err = svc.UpdateStatus(ctx, "nope", domain.StatusPublished)
	assert.ErrorIs(t, err, domain.ErrNoticeNotFound)

	require.NoError(t, svc.Delete(ctx, n.ID))
	assert.ErrorIs(t, svc.Delete(ctx, n.ID), domain.ErrNoticeNotFound)
}

func TestService_DatabaseUnavailable(t *testing.T) {
	svc := &Service{Repos: unavailable{}}
	ctx := context.Background()

	_, err := svc.Create(ctx, newNotice("x"))
	assert.ErrorIs(t, err, ErrDatabaseUnavailable)
	_, err = svc.List(ctx, ListParams{})
	assert.ErrorIs(t, err, ErrDatabaseUnavailable)
	_, err = svc.Get(ctx, "id")
	assert.ErrorIs(t, err, ErrDatabaseUnavailable)
	assert.ErrorIs(t, svc.Delete(ctx, "id"), ErrDatabaseUnavailable)
}

func TestSeed_ReplacesNotices(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, newNotice("old"))
	require.NoError(t, err)

	repo, err := svc.Repos.Notices()
	require.NoError(t, err)
	removed, err := Seed(ctx, repo, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	res, err := svc.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Pagination.Total)

	published, err := svc.List(ctx, ListParams{Filter: domain.NoticeFilter{Status: domain.StatusPublished}})
	require.NoError(t, err)
	assert.Len(t, published.Data, 2)
	for _, n := range res.Data {
		assert.Equal(t, "system", n.CreatedBy)
	}
}
