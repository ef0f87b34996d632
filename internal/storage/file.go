package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileExt    = ".cart.json"
	tempPrefix = ".tmp-"
)

// FileStore keeps one file per key in a directory. Several processes may share the
// directory; writes go to a temp file that is renamed over the target, so a reader
// sees either the previous or the next cart and never a partial one.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cart dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read cart file failed: %w", err)
	}
	return string(data), nil
}

func (f *FileStore) Set(ctx context.Context, key string, blob string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp cart file failed: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.WriteString(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("write cart file failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync cart file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cart file failed: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return fmt.Errorf("replace cart file failed: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cart file failed: %w", err)
	}
	return nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, FileName(key))
}

// FileName maps a key to the file name the store uses for it.
func FileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + fileExt
}

// KeyFromFileName reverses FileName. Temp files and foreign files report false.
func KeyFromFileName(name string) (string, bool) {
	name = filepath.Base(name)
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}
