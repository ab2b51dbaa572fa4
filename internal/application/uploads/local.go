package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalURLPrefix is where the router serves the upload directory.
const LocalURLPrefix = "/uploads"

// LocalStorage writes files into Dir.
type LocalStorage struct {
	Dir string
}

func (l *LocalStorage) Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.OpenFile(filepath.Join(l.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, body); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return LocalURLPrefix + "/" + name, nil
}
