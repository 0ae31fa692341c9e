// Package upload defines the file-host relay capability used by listing
// flows. The remote host is an external collaborator; only the capability
// contract lives here.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Uploader stores a file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, folder string) (string, error)
}

// DirUploader writes files under a local base directory. Used in tests and
// local development in place of the remote file host.
type DirUploader struct {
	BaseDir string
	BaseURL string
}

func (u *DirUploader) Upload(ctx context.Context, data []byte, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(u.BaseDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload folder: %w", err)
	}

	name := uuid.NewString()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return u.BaseURL + "/" + folder + "/" + name, nil
}
