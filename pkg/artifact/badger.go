package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/menta2k/image-editor/pkg/types"
)

const keyPrefix = "artifact:"

// BadgerStore keeps artifacts in an in-memory BadgerDB instance. Nothing is
// written to disk.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens an in-memory BadgerDB.
func NewBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func key(h Handle) []byte {
	return []byte(keyPrefix + string(h))
}

// value layout: format, NUL, data
func encodeValue(a types.Artifact) []byte {
	buf := make([]byte, 0, len(a.Format)+1+len(a.Data))
	buf = append(buf, a.Format...)
	buf = append(buf, 0)
	return append(buf, a.Data...)
}

func decodeValue(v []byte) (types.Artifact, error) {
	i := bytes.IndexByte(v, 0)
	if i < 0 {
		return types.Artifact{}, errors.New("corrupt artifact record")
	}
	return types.Artifact{Format: string(v[:i]), Data: v[i+1:]}, nil
}

// Put stores a.
func (s *BadgerStore) Put(ctx context.Context, a types.Artifact) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.Empty() {
		return "", errors.New("cannot store empty artifact")
	}

	h := HandleFor(a)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(h), encodeValue(a))
	})
	if err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	return h, nil
}

// Get returns the artifact for h.
func (s *BadgerStore) Get(ctx context.Context, h Handle) (types.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return types.Artifact{}, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(h))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.Artifact{}, ErrNotFound
	}
	if err != nil {
		return types.Artifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	return decodeValue(value)
}

// Delete removes h. Deleting an unknown handle is not an error.
func (s *BadgerStore) Delete(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(h))
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
