// Package artifacts is a content-addressed store for delivered $address
// content. Keys are "sha256:<hex>" digests of the stored bytes.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for an unknown digest.
var ErrNotFound = errors.New("artifact not found")

const digestPrefix = "sha256:"

// Store persists content by digest. Storing the same bytes twice is a
// no-op, as is deleting a missing digest.
type Store interface {
	Store(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, digest string) ([]byte, error)
	Exists(ctx context.Context, digest string) (bool, error)
	Delete(ctx context.Context, digest string) error
}

// Digest returns the content address of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return digestPrefix + hex.EncodeToString(sum[:])
}

// objectKey turns a digest into the slash separated key every backend
// stores it under: the first byte of the hash fans out into a directory.
func objectKey(digest string) (string, error) {
	h, ok := strings.CutPrefix(digest, digestPrefix)
	if !ok {
		return "", fmt.Errorf("artifacts: %q is not a sha256 digest", digest)
	}
	if b, err := hex.DecodeString(h); err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("artifacts: %q has a malformed hash", digest)
	}
	return path.Join(h[:2], h[2:]), nil
}

func notFound(digest string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, digest)
}

// MemoryStore keeps content in process memory. It backs lite mode and
// tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}}
}

func (s *MemoryStore) Store(_ context.Context, data []byte) (string, error) {
	d := Digest(data)
	s.mu.Lock()
	if _, ok := s.blobs[d]; !ok {
		s.blobs[d] = append([]byte(nil), data...)
	}
	s.mu.Unlock()
	return d, nil
}

func (s *MemoryStore) Get(_ context.Context, digest string) ([]byte, error) {
	if _, err := objectKey(digest); err != nil {
		return nil, err
	}
	s.mu.RLock()
	b, ok := s.blobs[digest]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(digest)
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) Exists(_ context.Context, digest string) (bool, error) {
	if _, err := objectKey(digest); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.blobs[digest]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, digest string) error {
	if _, err := objectKey(digest); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.blobs, digest)
	s.mu.Unlock()
	return nil
}

// FileStore lays content out under baseDir/<2 hex>/<62 hex>. Writes go
// through a temp file and rename, so readers never see a partial blob.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: content is served to peers
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) resolve(digest string) (string, error) {
	key, err := objectKey(digest)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

func (s *FileStore) Store(_ context.Context, data []byte) (string, error) {
	d := Digest(data)
	dst, err := s.resolve(d)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dst); err == nil {
		return d, nil
	}
	//nolint:gosec // G301: content is served to peers
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("artifacts: fan-out dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".incoming-*")
	if err != nil {
		return "", fmt.Errorf("artifacts: temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("artifacts: write %s: %w", d, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("artifacts: write %s: %w", d, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("artifacts: commit %s: %w", d, err)
	}
	return d, nil
}

func (s *FileStore) Get(_ context.Context, digest string) ([]byte, error) {
	p, err := s.resolve(digest)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(digest)
	}
	return b, err
}

func (s *FileStore) Exists(_ context.Context, digest string) (bool, error) {
	p, err := s.resolve(digest)
	if err != nil {
		return false, err
	}
	switch _, err := os.Stat(p); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *FileStore) Delete(_ context.Context, digest string) error {
	p, err := s.resolve(digest)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("artifacts: delete %s: %w", digest, err)
	}
	return nil
}
