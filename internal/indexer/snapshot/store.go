package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Store persists encoded snapshots under a name, typically the collection
// name.
type Store interface {
	Save(ctx context.Context, name string, s *Snapshot) error
	Load(ctx context.Context, name string) (*Snapshot, error)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func checkName(name string) error {
	if !validName.MatchString(name) || name == "." || name == ".." {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "invalid snapshot name %q", name)
	}
	return nil
}

// FileStore writes one .snap file per name into a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, name+".snap")
}

// Save writes to a temporary file first and renames it over the previous
// snapshot once it is synced.
func (fs *FileStore) Save(_ context.Context, name string, s *Snapshot) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(fs.dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	finalPath := fs.path(name)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

func (fs *FileStore) Load(_ context.Context, name string) (*Snapshot, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fs.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "no snapshot named %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", name, err)
	}
	return Decode(data)
}

// BlobClient is the subset of the Redis client the snapshot store needs.
type BlobClient interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RedisStore keeps snapshots as single Redis values under prefix+name.
type RedisStore struct {
	client BlobClient
	prefix string
	ttl    time.Duration
	isNil  func(error) bool
}

// NewRedisStore stores snapshots without expiry when ttl is zero. isNil
// recognizes the client's key-not-found error.
func NewRedisStore(client BlobClient, prefix string, ttl time.Duration, isNil func(error) bool) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, isNil: isNil}
}

func (rs *RedisStore) Save(ctx context.Context, name string, s *Snapshot) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := rs.client.Set(ctx, rs.prefix+name, data, rs.ttl); err != nil {
		return fmt.Errorf("storing snapshot %s in redis: %w", name, err)
	}
	return nil
}

func (rs *RedisStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := rs.client.GetBytes(ctx, rs.prefix+name)
	if err != nil {
		if rs.isNil != nil && rs.isNil(err) {
			return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "no snapshot named %q", name)
		}
		return nil, fmt.Errorf("loading snapshot %s from redis: %w", name, err)
	}
	return Decode(data)
}
