package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Version   int               `json:"version"`
	Entries   map[string][]byte `json:"entries"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FileStore persists every entry into one JSON document, rewritten on each mutation.
type FileStore struct {
	mu       sync.RWMutex
	doc      *fileDocument
	filePath string
}

// NewFileStore loads the document at filePath, or starts an empty one if it doesn't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	doc, err := loadDocument(filePath)
	if err != nil {
		return nil, err
	}
	return &FileStore{doc: doc, filePath: filePath}, nil
}

func (f *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.doc.Entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *FileStore) Put(ctx context.Context, key string, value []byte) error {
	return f.withWrite(ctx, func(d *fileDocument) {
		d.Entries[key] = append([]byte(nil), value...)
	})
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	return f.withWrite(ctx, func(d *fileDocument) {
		delete(d.Entries, key)
	})
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save()
}

func (f *FileStore) withWrite(ctx context.Context, fn func(*fileDocument)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.doc)
	return f.save()
}

// save writes to a temp file and renames it so a crash never leaves a half-written document.
func (f *FileStore) save() error {
	f.doc.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(f.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.filePath)
}

func loadDocument(filePath string) (*fileDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileDocument{Version: 1, Entries: map[string][]byte{}}, nil
		}
		return nil, err
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string][]byte{}
	}
	return &doc, nil
}
