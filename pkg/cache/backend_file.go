package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileSuffix = ".json"

	// maxFileNameBytes stays below the 255 byte NAME_MAX of common file
	// systems. Longer escaped keys keep a readable head and are made
	// unique by a hash of the full key.
	maxFileNameBytes = 200
	maxHeadBytes     = 100

	// hashSep never appears in an escaped key since PathEscape encodes ';'.
	hashSep = ";"
)

// CacheDir resolves the directory of the file backend.
// Precedence:
//  1. SKAI_CACHE_DIR, if set and non-empty
//  2. os.UserCacheDir()/skai
//
// Returns ("", false) if no directory can be resolved.
func CacheDir() (string, bool) {
	if c, ok := os.LookupEnv("SKAI_CACHE_DIR"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "skai"), true
	}
	return "", false
}

// FileBackend stores one file per key inside a directory, the on-disk
// equivalent of browser local storage.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed and returns a backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the backend directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, fileName(key))
}

// fileName maps key to a file name of at most maxFileNameBytes bytes.
func fileName(key string) string {
	escaped := url.PathEscape(key)
	if len(escaped)+len(fileSuffix) <= maxFileNameBytes {
		return escaped + fileSuffix
	}

	// Do not cut inside a %XX escape.
	n := maxHeadBytes
	switch {
	case escaped[n-1] == '%':
		n--
	case escaped[n-2] == '%':
		n -= 2
	}
	sum := sha256.Sum256([]byte(key))
	return escaped[:n] + hashSep + hex.EncodeToString(sum[:]) + fileSuffix
}

// matchesPrefix reports whether the file name belongs to a key starting
// with prefix. Hashed names only carry the head of their key, so a prefix
// longer than the head is never matched against them.
func matchesPrefix(name, prefix string) bool {
	base := strings.TrimSuffix(name, fileSuffix)
	head, _, hashed := strings.Cut(base, hashSep)
	key, err := url.PathUnescape(head)
	if err != nil {
		return false
	}
	if hashed && len(prefix) > len(key) {
		return false
	}
	return strings.HasPrefix(key, prefix)
}

// Get implements Backend.
func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Set implements Backend. The record is written to a temporary file and
// renamed into place so readers never observe a partial write.
func (b *FileBackend) Set(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *FileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// DeletePrefix implements Backend.
func (b *FileBackend) DeletePrefix(_ context.Context, prefix string) error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("list cache directory: %w", err)
	}

	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		if !matchesPrefix(name, prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
