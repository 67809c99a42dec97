package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader stores cover images on local disk. It stands in for R2 when
// no bucket is configured; the directory is served under BaseURL.
type LocalUploader struct {
	Dir     string
	BaseURL string
}

// EnsureUploadDir creates the upload directory if it doesn't exist.
func (u *LocalUploader) EnsureUploadDir() error {
	return os.MkdirAll(u.Dir, os.ModePerm)
}

// Upload saves body under key inside Dir and returns its URL.
func (u *LocalUploader) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	clean := filepath.Clean("/" + key)
	destPath := filepath.Join(u.Dir, clean)

	// Ensure the directory for the destination file exists
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return "", err
	}

	dst, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, body); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return strings.TrimRight(u.BaseURL, "/") + filepath.ToSlash(clean), nil
}
