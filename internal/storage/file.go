package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/DobryySoul/recipeshare/internal/recipe"
)

// FileStore keeps the record list in a single file. Writes go to a sibling
// temporary file which is synced and then renamed over the target, so a
// reader only ever sees a complete list.
type FileStore struct {
	path  string
	codec Codec

	// mu serializes load-modify-save sequences. Readers do not need it since
	// rename is atomic, but they take the read side to observe a settled file.
	mu     sync.RWMutex
	lastID uint64

	syncFile func(*os.File) error
	syncDir  func(dir string) error
}

// NewFileStore returns a store backed by path. A nil codec means JSONCodec.
func NewFileStore(path string, codec Codec) *FileStore {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &FileStore{
		path:     path,
		codec:    codec,
		syncFile: (*os.File).Sync,
		syncDir:  syncDir,
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Init creates the backing file with an empty list if it does not exist.
func (s *FileStore) Init(ctx context.Context) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "stat", Path: s.path, Err: err}
	}
	return s.save(nil)
}

func (s *FileStore) Load(ctx context.Context) ([]recipe.Record, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

func (s *FileStore) Save(ctx context.Context, records []recipe.Record) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(records)
}

func (s *FileStore) Append(ctx context.Context, rec recipe.Record) (recipe.Record, error) {
	if err := checkCtx(ctx); err != nil {
		return recipe.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return recipe.Record{}, err
	}
	records, stored, err := appendRecord(records, rec, s.lastID)
	if err != nil {
		return recipe.Record{}, err
	}
	if err := s.save(records); err != nil {
		return recipe.Record{}, err
	}
	if stored.ID > s.lastID {
		s.lastID = stored.ID
	}
	return stored, nil
}

func (s *FileStore) SetPublic(ctx context.Context, id uint64) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if err := markPublic(records, id); err != nil {
		return err
	}
	return s.save(records)
}

func (s *FileStore) ListPublic(ctx context.Context) ([]recipe.Record, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return filterPublic(records), nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() ([]recipe.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	records, err := s.codec.Unmarshal(data)
	if err != nil {
		return nil, &StorageError{Op: "decode", Path: s.path, Err: err}
	}
	if records == nil {
		records = []recipe.Record{}
	}
	return records, nil
}

func (s *FileStore) save(records []recipe.Record) error {
	data, err := s.codec.Marshal(records)
	if err != nil {
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &StorageError{Op: "create temp", Path: s.path, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &StorageError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := s.syncFile(tmp); err != nil {
		return &StorageError{Op: "sync", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Chmod(0o644); err != nil {
		return &StorageError{Op: "chmod", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &StorageError{Op: "rename", Path: s.path, Err: err}
	}
	committed = true
	// persist the rename itself; the new contents are already durable, so a
	// failure here is not reported
	_ = s.syncDir(filepath.Dir(s.path))
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
