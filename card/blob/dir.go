package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/x402cards/paygate/card"
)

// Dir stores objects as files under Root and serves them below BaseURL.
type Dir struct {
	Root    string
	BaseURL string
}

var _ card.Store = (*Dir)(nil)

// NewDir creates root if needed.
func NewDir(root, baseURL string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("blob: directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: failed to create directory: %w", err)
	}
	return &Dir{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data to a uniquely named file derived from name.
func (d *Dir) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base := path.Base("/" + name)
	ext := path.Ext(base)
	file := strings.TrimSuffix(base, ext) + "-" + uuid.NewString() + ext

	tmp, err := os.CreateTemp(d.Root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blob: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.Root, file)); err != nil {
		return "", fmt.Errorf("blob: %w", err)
	}
	return d.BaseURL + "/" + file, nil
}

// Handler serves the stored files. Mount it with http.StripPrefix at the path
// of BaseURL.
func (d *Dir) Handler() http.Handler {
	return http.FileServer(http.Dir(d.Root))
}
