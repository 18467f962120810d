// Package storage keeps post image files on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anonto42/nano-feed/backend/internal/apperr"
	"github.com/google/uuid"
)

// URLPrefix is the path under which stored images are served and referenced.
const URLPrefix = "images"

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpg":  ".jpg",
	"image/jpeg": ".jpg",
}

// ImageStore saves uploaded images and deletes released ones on Sweep.
type ImageStore struct {
	dir string
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewImageStore(dir string, log *slog.Logger) (*ImageStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir %s: %w", dir, err)
	}

	return &ImageStore{
		dir:     dir,
		log:     log,
		pending: make(map[string]struct{}),
	}, nil
}

// Dir returns the directory images are written to.
func (s *ImageStore) Dir() string {
	return s.dir
}

// Save writes an uploaded png or jpeg under a random name and returns its reference,
// for example "images/6f1c...e2.png".
func (s *ImageStore) Save(file *multipart.FileHeader) (string, error) {
	ext, ok := allowedTypes[strings.ToLower(file.Header.Get("Content-Type"))]
	if !ok {
		return "", apperr.InvalidInput("Validation failed, entered data is incorrect.", []apperr.FieldError{
			{Field: "image", Reason: "image must be a png or jpeg file"},
		})
	}

	src, err := file.Open()
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("open upload: %w", err))
	}
	defer src.Close()

	name := uuid.NewString() + ext
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("create image %s: %w", name, err))
	}

	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", apperr.Internal(fmt.Errorf("write image %s: %w", name, err))
	}
	if err = dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", apperr.Internal(fmt.Errorf("close image %s: %w", name, err))
	}

	return path.Join(URLPrefix, name), nil
}

// Release schedules the referenced image for deletion on the next Sweep. References
// outside the store are ignored.
func (s *ImageStore) Release(ref string) {
	name, ok := fileName(ref)
	if !ok {
		s.log.Warn("Ignoring release of foreign image reference",
			"ref", ref)
		return
	}

	s.mu.Lock()
	s.pending[name] = struct{}{}
	s.mu.Unlock()
}

// Pending returns the number of images waiting for a sweep.
func (s *ImageStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// Sweep deletes every released image. A file that is already gone counts as
// deleted; other failures stay pending for the next sweep.
func (s *ImageStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.pending))
	for name := range s.pending {
		names = append(names, name)
	}
	s.mu.Unlock()

	var (
		removed int
		errs    []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		err := os.Remove(filepath.Join(s.dir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove image %s: %w", name, err))
			continue
		}

		s.mu.Lock()
		delete(s.pending, name)
		s.mu.Unlock()
		removed++
	}

	return removed, errors.Join(errs...)
}

func fileName(ref string) (string, bool) {
	ref = strings.TrimPrefix(filepath.ToSlash(ref), "/")
	name, ok := strings.CutPrefix(ref, URLPrefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", false
	}
	return name, true
}
