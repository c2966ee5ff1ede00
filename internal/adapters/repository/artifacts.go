package repository

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/okian/stride/internal/domain/prediction"
	"github.com/okian/stride/internal/domain/training"
)

// Artifacts is the badger-backed model artifact store.
type Artifacts struct {
	db *badger.DB
}

var (
	_ training.ArtifactStore    = (*Artifacts)(nil)
	_ prediction.ArtifactSource = (*Artifacts)(nil)
)

// OpenArtifacts opens the store in dir. An empty dir keeps everything in
// memory.
func OpenArtifacts(dir string) (*Artifacts, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: artifacts: %w", ErrOpen, err)
	}
	return &Artifacts{db: db}, nil
}

// Put stores data under key, replacing any previous value.
func (a *Artifacts) Put(_ context.Context, key string, data []byte) error {
	return a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("set artifact: %w", err)
		}
		return nil
	})
}

// Get returns the bytes under key or ErrArtifactNotFound.
func (a *Artifacts) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
		}
		if err != nil {
			return fmt.Errorf("get artifact: %w", err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes key; missing keys are not an error.
func (a *Artifacts) Delete(_ context.Context, key string) error {
	return a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete artifact: %w", err)
		}
		return nil
	})
}

// Keys lists keys with prefix in byte order.
func (a *Artifacts) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return keys, nil
}

// Close flushes and closes the store.
func (a *Artifacts) Close() error {
	return a.db.Close()
}
