package notices

import (
	"context"
	"time"

	"nebs-backend/internal/domain"
)

// SampleNotices are the notices loaded by `noticectl seed`.
func SampleNotices(now time.Time) []domain.Notice {
	return []domain.Notice{
		{
			TargetDepartmentOrIndividual: "IT Department",
			TargetType:                   domain.TargetDepartment,
			NoticeTitle:                  "System Maintenance Notice",
			NoticeType:                   "Maintenance",
			PublishDate:                  now,
			NoticeBody:                   "The system will undergo maintenance on December 25, 2024 from 2 AM to 4 AM.",
			Status:                       domain.StatusPublished,
		},
		{
			TargetDepartmentOrIndividual: "John Doe",
			TargetType:                   domain.TargetIndividual,
			NoticeTitle:                  "Employee Recognition",
			EmployeeID:                   "EMP001",
			EmployeeName:                 "John Doe",
			Position:                     "Senior Developer",
			NoticeType:                   "Recognition",
			PublishDate:                  now,
			NoticeBody:                   "Congratulations to John Doe for outstanding performance this quarter.",
			Status:                       domain.StatusPublished,
		},
		{
			TargetDepartmentOrIndividual: "HR Department",
			TargetType:                   domain.TargetDepartment,
			NoticeTitle:                  "Holiday Schedule",
			NoticeType:                   "Announcement",
			PublishDate:                  now,
			NoticeBody:                   "Please note the holiday schedule for the upcoming month.",
			Status:                       domain.StatusDraft,
		},
	}
}

// Seed replaces every stored notice with SampleNotices. It returns how many
// notices were removed.
func Seed(ctx context.Context, repo domain.NoticeRepository, now time.Time) (int64, error) {
	removed, err := repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, n := range SampleNotices(now) {
		n := n
		n.CreatedBy = domain.DefaultCreatedBy
		if err := repo.Create(ctx, &n); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
