package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps media under a root directory. The content type is stored in
// a sidecar file next to each object.
type DiskStore struct {
	root     string
	maxBytes int64
}

// NewDiskStore creates root if needed. maxBytes <= 0 disables the size cap.
func NewDiskStore(root string, maxBytes int64) (*DiskStore, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "media-quiz")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{root: root, maxBytes: maxBytes}, nil
}

func (s *DiskStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *DiskStore) Put(_ context.Context, key, contentType string, r io.Reader) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err != nil {
		_ = os.Remove(p)
		return "", err
	}
	if err := os.WriteFile(p+".type", []byte(contentType), 0o600); err != nil {
		_ = os.Remove(p)
		return "", fmt.Errorf("write content type: %w", err)
	}
	return key, nil
}

func (s *DiskStore) Open(_ context.Context, ref string) (File, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	ct, _ := os.ReadFile(p + ".type")
	return &diskFile{File: f, size: info.Size(), contentType: string(ct)}, nil
}

func (s *DiskStore) LocalPath(_ context.Context, ref string) (string, func(), error) {
	p, err := s.path(ref)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return "", nil, ErrNotFound
	} else if err != nil {
		return "", nil, err
	}
	return p, func() {}, nil
}

func (s *DiskStore) DeletePrefix(_ context.Context, prefix string) error {
	p, err := s.path(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("remove media: %w", err)
	}
	// A single object also has its content type sidecar.
	if err := os.Remove(p + ".type"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove media: %w", err)
	}
	return nil
}

type diskFile struct {
	*os.File
	size        int64
	contentType string
}

func (f *diskFile) Size() int64         { return f.size }
func (f *diskFile) ContentType() string { return f.contentType }
