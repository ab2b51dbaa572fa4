package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"nebs-backend/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MaxFiles is the most attachments one request may carry.
const MaxFiles = 10

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

var (
	ErrTooManyFiles    = fmt.Errorf("more than %d attachments", MaxFiles)
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrFileTooLarge    = errors.New("attachment too large")
)

// Message is the client-facing text for a Check failure.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrTooManyFiles):
		return fmt.Sprintf("Too many files. At most %d attachments are allowed.", MaxFiles)
	case errors.Is(err, ErrUnsupportedType):
		return "Invalid file type. Only images (jpeg, jpg, png, gif) and documents (pdf, doc, docx) are allowed."
	case errors.Is(err, ErrFileTooLarge):
		return "File too large"
	default:
		return "Invalid attachments"
	}
}

// Storage writes one object and returns the URL clients use to fetch it.
type Storage interface {
	Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (string, error)
}

// Service validates and stores notice attachments.
type Service struct {
	Storage     Storage
	MaxFileSize int64
	now         func() time.Time
}

// New picks the storage driver from cfg.
func New(ctx context.Context, cfg config.UploadConfig) (*Service, error) {
	var st Storage
	switch cfg.Driver {
	case config.UploadS3:
		s3st, err := NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st = s3st
	case config.UploadSupabase:
		st = &SupabaseStorage{
			Client: &HTTPClient{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey, Client: defaultHTTPClient},
			Bucket: cfg.SupabaseBucket,
		}
	default:
		st = &LocalStorage{Dir: cfg.Dir}
	}
	return &Service{Storage: st, MaxFileSize: cfg.MaxFileSize}, nil
}

// Check rejects a batch before anything is written.
func (s *Service) Check(files []*multipart.FileHeader) error {
	if len(files) > MaxFiles {
		return ErrTooManyFiles
	}
	for _, fh := range files {
		if !allowedExtensions[strings.ToLower(filepath.Ext(fh.Filename))] {
			return ErrUnsupportedType
		}
		if s.MaxFileSize > 0 && fh.Size > s.MaxFileSize {
			return fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, fh.Filename, s.MaxFileSize)
		}
	}
	return nil
}

// SaveAll stores every file and returns their URLs in order.
func (s *Service) SaveAll(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := s.Check(files); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		url, err := s.save(ctx, fh)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (s *Service) save(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	name := StoredName(fh.Filename, s.clock())
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); ct != "" {
			contentType = ct
		}
	}
	url, err := s.Storage.Put(ctx, name, contentType, f, fh.Size)
	if err != nil {
		log.Error().Err(err).Str("file", fh.Filename).Msg("upload: failed to store attachment")
		return "", err
	}
	return url, nil
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StoredName builds "<unix-ms>-<8 hex>-<sanitized original>" so names never collide.
func StoredName(original string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "-"), "-")
	if base == "" || base == "." {
		base = "file"
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), id, base)
}
