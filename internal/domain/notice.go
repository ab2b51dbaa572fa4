package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NoticeStatus is the publication state of a notice.
type NoticeStatus string

const (
	StatusDraft       NoticeStatus = "draft"
	StatusPublished   NoticeStatus = "published"
	StatusUnpublished NoticeStatus = "unpublished"
)

// TargetType says whether a notice addresses a department or a single employee.
type TargetType string

const (
	TargetDepartment TargetType = "department"
	TargetIndividual TargetType = "individual"
)

// DefaultCreatedBy is recorded when the creator is not supplied.
const DefaultCreatedBy = "system"

// ErrNoticeNotFound is returned by repositories for unknown ids.
var ErrNoticeNotFound = errors.New("notice not found")

// Notice is a published announcement; the id is
// serialized as _id for API parity.
type Notice struct {
	ID                           string                      `gorm:"column:id;type:varchar(36);primaryKey" json:"_id" bson:"_id"`
	TargetDepartmentOrIndividual string                      `gorm:"column:target_department_or_individual;not null" json:"targetDepartmentOrIndividual" bson:"targetDepartmentOrIndividual"`
	TargetType                   TargetType                  `gorm:"column:target_type;type:varchar(20);not null" json:"targetType" bson:"targetType"`
	NoticeTitle                  string                      `gorm:"column:notice_title;not null" json:"noticeTitle" bson:"noticeTitle"`
	EmployeeID                   string                      `gorm:"column:employee_id" json:"employeeId,omitempty" bson:"employeeId,omitempty"`
	EmployeeName                 string                      `gorm:"column:employee_name" json:"employeeName,omitempty" bson:"employeeName,omitempty"`
	Position                     string                      `gorm:"column:position" json:"position,omitempty" bson:"position,omitempty"`
	NoticeType                   string                      `gorm:"column:notice_type;not null;index" json:"noticeType" bson:"noticeType"`
	PublishDate                  time.Time                   `gorm:"column:publish_date;not null" json:"publishDate" bson:"publishDate"`
	NoticeBody                   string                      `gorm:"column:notice_body;type:text;not null" json:"noticeBody" bson:"noticeBody"`
	Attachments                  datatypes.JSONSlice[string] `gorm:"column:attachments" json:"attachments" bson:"attachments"`
	Status                       NoticeStatus                `gorm:"column:status;type:varchar(20);default:'draft';index:idx_notices_status_created,priority:1" json:"status" bson:"status"`
	CreatedBy                    string                      `gorm:"column:created_by;default:'system'" json:"createdBy" bson:"createdBy"`
	CreatedAt                    time.Time                   `gorm:"column:created_at;index:idx_notices_status_created,priority:2,sort:desc" json:"createdAt" bson:"createdAt"`
	UpdatedAt                    time.Time                   `gorm:"column:updated_at" json:"updatedAt" bson:"updatedAt"`
}

func (Notice) TableName() string {
	return "notices"
}

// BeforeCreate sets id if not already set.
func (n *Notice) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// Normalize trims text fields and fills the model defaults (draft, system, no attachments).
func (n *Notice) Normalize() {
	n.TargetDepartmentOrIndividual = strings.TrimSpace(n.TargetDepartmentOrIndividual)
	n.NoticeTitle = strings.TrimSpace(n.NoticeTitle)
	n.EmployeeID = strings.TrimSpace(n.EmployeeID)
	n.EmployeeName = strings.TrimSpace(n.EmployeeName)
	n.Position = strings.TrimSpace(n.Position)
	n.NoticeType = strings.TrimSpace(n.NoticeType)
	n.NoticeBody = strings.TrimSpace(n.NoticeBody)
	n.CreatedBy = strings.TrimSpace(n.CreatedBy)
	if n.Status == "" {
		n.Status = StatusDraft
	}
	if n.CreatedBy == "" {
		n.CreatedBy = DefaultCreatedBy
	}
	if n.Attachments == nil {
		n.Attachments = datatypes.JSONSlice[string]{}
	}
}

// NoticePatch is a partial update; nil fields are left untouched.
type NoticePatch struct {
	TargetDepartmentOrIndividual *string
	TargetType                   *TargetType
	NoticeTitle                  *string
	EmployeeID                   *string
	EmployeeName                 *string
	Position                     *string
	NoticeType                   *string
	PublishDate                  *time.Time
	NoticeBody                   *string
	Attachments                  []string // replaces existing attachments when non-nil
	Status                       *NoticeStatus
}

// Apply copies the set fields onto n.
func (p NoticePatch) Apply(n *Notice) {
	if p.TargetDepartmentOrIndividual != nil {
		n.TargetDepartmentOrIndividual = *p.TargetDepartmentOrIndividual
	}
	if p.TargetType != nil {
		n.TargetType = *p.TargetType
	}
	if p.NoticeTitle != nil {
		n.NoticeTitle = *p.NoticeTitle
	}
	if p.EmployeeID != nil {
		n.EmployeeID = *p.EmployeeID
	}
	if p.EmployeeName != nil {
		n.EmployeeName = *p.EmployeeName
	}
	if p.Position != nil {
		n.Position = *p.Position
	}
	if p.NoticeType != nil {
		n.NoticeType = *p.NoticeType
	}
	if p.PublishDate != nil {
		n.PublishDate = *p.PublishDate
	}
	if p.NoticeBody != nil {
		n.NoticeBody = *p.NoticeBody
	}
	if p.Attachments != nil {
		n.Attachments = datatypes.JSONSlice[string](p.Attachments)
	}
	if p.Status != nil {
		n.Status = *p.Status
	}
	n.Normalize()
}

// NoticeFilter narrows a listing; empty fields match everything.
type NoticeFilter struct {
	Status     NoticeStatus
	NoticeType string
	TargetType TargetType
}

// NoticeRepository persists notices. Implementations return ErrNoticeNotFound for unknown ids.
type NoticeRepository interface {
	Create(ctx context.Context, n *Notice) error
	Get(ctx context.Context, id string) (*Notice, error)
	// List returns one page ordered by createdAt descending, plus the total match count.
	List(ctx context.Context, f NoticeFilter, skip, limit int) ([]Notice, int64, error)
	Update(ctx context.Context, id string, patch NoticePatch) (*Notice, error)
	Delete(ctx context.Context, id string) (*Notice, error)
	DeleteAll(ctx context.Context) (int64, error)
	Migrate(ctx context.Context) error
}
