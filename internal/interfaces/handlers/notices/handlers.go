package notices

import (
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	noticesvc "nebs-backend/internal/application/notices"
	uploadsvc "nebs-backend/internal/application/uploads"
	"nebs-backend/internal/domain"
	"nebs-backend/internal/pkg/response"
	"nebs-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers bundles notice handlers with their services.
type Handlers struct {
	Service *noticesvc.Service
	Uploads *uploadsvc.Service
}

type createRequest struct {
	TargetDepartmentOrIndividual string   `json:"targetDepartmentOrIndividual" form:"targetDepartmentOrIndividual" validate:"required" label:"Target department or individual"`
	TargetType                   string   `json:"targetType" form:"targetType" validate:"required,oneof=department individual" label:"Target type"`
	NoticeTitle                  string   `json:"noticeTitle" form:"noticeTitle" validate:"required" label:"Notice title"`
	EmployeeID                   string   `json:"employeeId" form:"employeeId"`
	EmployeeName                 string   `json:"employeeName" form:"employeeName"`
	Position                     string   `json:"position" form:"position"`
	NoticeType                   string   `json:"noticeType" form:"noticeType" validate:"required" label:"Notice type"`
	PublishDate                  string   `json:"publishDate" form:"publishDate" validate:"omitempty,date"`
	NoticeBody                   string   `json:"noticeBody" form:"noticeBody" validate:"required" label:"Notice body"`
	Attachments                  []string `json:"attachments" form:"-"`
	Status                       string   `json:"status" form:"status" validate:"omitempty,oneof=draft published unpublished"`
	CreatedBy                    string   `json:"createdBy" form:"createdBy"`
}

type updateRequest struct {
	TargetDepartmentOrIndividual *string  `json:"targetDepartmentOrIndividual" form:"targetDepartmentOrIndividual" validate:"omitempty,min=1"`
	TargetType                   *string  `json:"targetType" form:"targetType" validate:"omitempty,oneof=department individual"`
	NoticeTitle                  *string  `json:"noticeTitle" form:"noticeTitle" validate:"omitempty,min=1"`
	EmployeeID                   *string  `json:"employeeId" form:"employeeId"`
	EmployeeName                 *string  `json:"employeeName" form:"employeeName"`
	Position                     *string  `json:"position" form:"position"`
	NoticeType                   *string  `json:"noticeType" form:"noticeType" validate:"omitempty,min=1"`
	PublishDate                  *string  `json:"publishDate" form:"publishDate" validate:"omitempty,date"`
	NoticeBody                   *string  `json:"noticeBody" form:"noticeBody" validate:"omitempty,min=1"`
	Attachments                  []string `json:"attachments" form:"-"`
	Status                       *string  `json:"status" form:"status" validate:"omitempty,oneof=draft published unpublished"`
}

type statusRequest struct {
	Status string `json:"status" form:"status" validate:"required,oneof=draft published unpublished" label:"Status"`
}

type listQuery struct {
	Page       string `query:"page"`
	Limit      string `query:"limit"`
	Status     string `query:"status" json:"status" validate:"omitempty,oneof=draft published unpublished"`
	NoticeType string `query:"noticeType" json:"noticeType"`
	TargetType string `query:"targetType" json:"targetType" validate:"omitempty,oneof=department individual"`
}

// Create POST /api/notices
func (h *Handlers) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := parseBody(c, &req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, "")
	}
	req.trim()
	if errs := validation.Struct("body", &req); errs != nil {
		return response.ValidationFailed(c, errs)
	}

	n := &domain.Notice{
		TargetDepartmentOrIndividual: req.TargetDepartmentOrIndividual,
		TargetType:                   domain.TargetType(req.TargetType),
		NoticeTitle:                  req.NoticeTitle,
		EmployeeID:                   req.EmployeeID,
		EmployeeName:                 req.EmployeeName,
		Position:                     req.Position,
		NoticeType:                   req.NoticeType,
		NoticeBody:                   req.NoticeBody,
		Attachments:                  req.Attachments,
		Status:                       domain.NoticeStatus(req.Status),
		CreatedBy:                    req.CreatedBy,
	}
	if req.PublishDate != "" {
		// Already validated.
		n.PublishDate, _ = validation.ParseDate(req.PublishDate)
	}

	urls, ferr := h.saveAttachments(c)
	if ferr != nil {
		return response.Error(c, ferr.Message, ferr.Code, "")
	}
	if len(urls) > 0 {
		n.Attachments = urls
	}

	created, err := h.Service.Create(c.UserContext(), n)
	if err != nil {
		return h.fail(c, err, "create")
	}
	return response.SuccessCreated(c, response.MsgCreated, created)
}

// List GET /api/notices
func (h *Handlers) List(c *fiber.Ctx) error {
	var q listQuery
	if err := c.QueryParser(&q); err != nil {
		return response.Error(c, "Invalid query", fiber.StatusBadRequest, "")
	}
	if errs := validation.Struct("query", &q); errs != nil {
		return response.ValidationFailed(c, errs)
	}
	res, err := h.Service.List(c.UserContext(), noticesvc.ListParams{
		Page:  atoiOr(q.Page, noticesvc.DefaultPage),
		Limit: atoiOr(q.Limit, noticesvc.DefaultLimit),
		Filter: domain.NoticeFilter{
			Status:     domain.NoticeStatus(q.Status),
			NoticeType: strings.TrimSpace(q.NoticeType),
			TargetType: domain.TargetType(q.TargetType),
		},
	})
	if err != nil {
		return h.fail(c, err, "list")
	}
	return response.Success(c, response.MsgRetrieved, res)
}

// Get GET /api/notices/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	n, err := h.Service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "get")
	}
	return response.Success(c, response.MsgRetrieved, n)
}

// Update PUT /api/notices/:id
func (h *Handlers) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := parseBody(c, &req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, "")
	}
	req.trim()
	if errs := validation.Struct("body", &req); errs != nil {
		return response.ValidationFailed(c, errs)
	}

	patch := domain.NoticePatch{
		TargetDepartmentOrIndividual: req.TargetDepartmentOrIndividual,
		NoticeTitle:                  req.NoticeTitle,
		EmployeeID:                   req.EmployeeID,
		EmployeeName:                 req.EmployeeName,
		Position:                     req.Position,
		NoticeType:                   req.NoticeType,
		NoticeBody:                   req.NoticeBody,
		Attachments:                  req.Attachments,
	}
	if req.TargetType != nil {
		tt := domain.TargetType(*req.TargetType)
		patch.TargetType = &tt
	}
	if req.Status != nil {
		st := domain.NoticeStatus(*req.Status)
		patch.Status = &st
	}
	if req.PublishDate != nil {
		d, _ := validation.ParseDate(*req.PublishDate)
		patch.PublishDate = &d
	}

	urls, ferr := h.saveAttachments(c)
	if ferr != nil {
		return response.Error(c, ferr.Message, ferr.Code, "")
	}
	if len(urls) > 0 {
		// New uploads replace existing attachments.
		patch.Attachments = urls
	}

	n, err := h.Service.Update(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return h.fail(c, err, "update")
	}
	return response.Success(c, response.MsgUpdated, n)
}

// UpdateStatus PATCH /api/notices/:id/status
func (h *Handlers) UpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := parseBody(c, &req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, "")
	}
	if errs := validation.Struct("body", &req); errs != nil {
		return response.ValidationFailed(c, errs)
	}
	n, err := h.Service.UpdateStatus(c.UserContext(), c.Params("id"), domain.NoticeStatus(req.Status))
	if err != nil {
		return h.fail(c, err, "update status")
	}
	return response.Success(c, "Notice status updated successfully", n)
}

// Delete DELETE /api/notices/:id
func (h *Handlers) Delete(c *fiber.Ctx) error {
	if err := h.Service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err, "delete")
	}
	return response.NoContent(c)
}

func (h *Handlers) fail(c *fiber.Ctx, err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrNoticeNotFound):
		return response.NotFound(c, "Notice not found")
	case errors.Is(err, noticesvc.ErrDatabaseUnavailable):
		log.Warn().Err(err).Str("op", op).Msg("notices: database unavailable")
		return response.Error(c, "Database unavailable", fiber.StatusServiceUnavailable, "")
	default:
		log.Error().Err(err).Str("op", op).Msg("notices: request failed")
		return err
	}
}

// saveAttachments stores uploaded files; the returned *fiber.Error is the client-facing failure.
func (h *Handlers) saveAttachments(c *fiber.Ctx) ([]string, *fiber.Error) {
	files, err := attachmentFiles(c)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid multipart form")
	}
	if len(files) == 0 {
		return nil, nil
	}
	if h.Uploads == nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Attachments are not supported")
	}
	if err := h.Uploads.Check(files); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, uploadsvc.Message(err))
	}
	urls, err := h.Uploads.SaveAll(c.UserContext(), files)
	if err != nil {
		log.Error().Err(err).Msg("notices: failed to store attachments")
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to upload attachments")
	}
	return urls, nil
}

func attachmentFiles(c *fiber.Ctx) ([]*multipart.FileHeader, error) {
	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	return form.File["attachments"], nil
}

// parseBody accepts JSON, urlencoded and multipart bodies; an empty body parses as no fields.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 && !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return nil
	}
	return c.BodyParser(out)
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (r *createRequest) trim() {
	r.TargetDepartmentOrIndividual = strings.TrimSpace(r.TargetDepartmentOrIndividual)
	r.TargetType = strings.TrimSpace(r.TargetType)
	r.NoticeTitle = strings.TrimSpace(r.NoticeTitle)
	r.NoticeType = strings.TrimSpace(r.NoticeType)
	r.NoticeBody = strings.TrimSpace(r.NoticeBody)
	r.PublishDate = strings.TrimSpace(r.PublishDate)
	r.Status = strings.TrimSpace(r.Status)
}

func (r *updateRequest) trim() {
	for _, p := range []*string{r.TargetDepartmentOrIndividual, r.TargetType, r.NoticeTitle, r.NoticeType, r.NoticeBody, r.PublishDate, r.Status} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}
