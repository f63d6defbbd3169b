// This file contains an implementation of a certificate storage on the disk
// which enables persistence.
//
// Documentation Last Review: 14.08.2026
//

package certstore

import (
	"encoding/json"
	"errors"

	"go.dedis.ch/lino/linotls"
	"go.dedis.ch/lino/linotls/certstore/kv"
	"golang.org/x/xerrors"
)

var certBucket = []byte("certificates")

var errInterrupt = errors.New("interrupted")

// DiskStore is a persistent implementation of a certificate storage. It uses
// internally an in-memory store to cache the certificates.
//
// - implements certstore.Storage
type DiskStore struct {
	*InMemoryStore

	db     kv.DB
	bucket []byte
}

// NewDiskStore returns a new empty disk store. If certificates are stored in
// the database, they will be loaded on demand.
func NewDiskStore(db kv.DB) *DiskStore {
	return &DiskStore{
		InMemoryStore: NewInMemoryStore(),
		db:            db,
		bucket:        certBucket,
	}
}

// Store implements certstore.Storage. It stores the certificate in the disk
// and in the cache.
func (s *DiskStore) Store(name string, crt linotls.Certificate) error {
	data, err := json.Marshal(crt)
	if err != nil {
		return xerrors.Errorf("while encoding certificate: %v", err)
	}

	// Save the certificate in the disk so that it can later be retrieved.
	err = s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(s.bucket)
		if err != nil {
			return xerrors.Errorf("while getting bucket: %v", err)
		}

		err = bucket.Set([]byte(name), data)
		if err != nil {
			return xerrors.Errorf("while writing: %v", err)
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("while updating db: %v", err)
	}

	s.InMemoryStore.Store(name, crt)

	return nil
}

// Load implements certstore.Storage. It first tries to read the certificate
// from the cache, then from the disk. It returns nil if not found in both.
func (s *DiskStore) Load(name string) (*linotls.Certificate, error) {
	cached, _ := s.InMemoryStore.Load(name)
	if cached != nil {
		return cached, nil
	}

	var crt *linotls.Certificate

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(s.bucket)
		if bucket == nil {
			return nil
		}

		value := bucket.Get([]byte(name))

		if len(value) == 0 {
			return nil
		}

		crt = &linotls.Certificate{}

		err := json.Unmarshal(value, crt)
		if err != nil {
			return xerrors.Errorf("while decoding certificate: %v", err)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("while reading db: %v", err)
	}

	if crt == nil {
		return nil, nil
	}

	// Keep the certificate in cache for faster access.
	s.InMemoryStore.Store(name, *crt)

	return crt, nil
}

// Delete implements certstore.Storage. It deletes the certificate from the
// disk and the cache.
func (s *DiskStore) Delete(name string) error {
	s.InMemoryStore.Delete(name)

	err := s.db.Update(func(tx kv.WritableTx) error {
		bucket := tx.GetBucket(s.bucket)
		if bucket == nil {
			return nil
		}

		err := bucket.Delete([]byte(name))
		if err != nil {
			return xerrors.Errorf("while deleting: %v", err)
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("while updating db: %v", err)
	}

	return nil
}

// Range implements certstore.Storage. It iterates over each certificate
// present in the disk.
func (s *DiskStore) Range(fn func(name string, crt linotls.Certificate) bool) error {
	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(s.bucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(key, value []byte) error {
			crt := linotls.Certificate{}

			err := json.Unmarshal(value, &crt)
			if err != nil {
				return xerrors.Errorf("while decoding certificate: %v", err)
			}

			next := fn(string(key), crt)
			if !next {
				return errInterrupt
			}

			return nil
		})
	})
	if errors.Is(err, errInterrupt) {
		// The iteration is interrupted by the caller, so that is not a real
		// error.
		return nil
	}
	if err != nil {
		return xerrors.Errorf("while reading db: %v", err)
	}

	return nil
}
