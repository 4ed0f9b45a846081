package store

import (
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var _ Store = &Bolt{}

// Bolt is a Store backed by a bbolt database file. Each namespace is a
// bucket.
type Bolt struct {
	db   *bbolt.DB
	path string
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create directory for %s", path)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open store %s", path)
	}

	return &Bolt{db: db, path: path}, nil
}

func (b *Bolt) Get(namespace, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return ErrNotFound
		}
		v := bucket.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction.
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

func (b *Bolt) Put(namespace, key string, value []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to put %s/%s", namespace, key)
	}
	return nil
}

func (b *Bolt) Clear(namespace string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(namespace)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(namespace))
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to clear namespace %s", namespace)
	}
	return nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// Path returns the database file path.
func (b *Bolt) Path() string {
	return b.path
}
