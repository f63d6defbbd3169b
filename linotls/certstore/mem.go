// This file contains the implementation of an in-memory certificate storage.
//
// Documentation Last Review: 14.08.2026
//

package certstore

import (
	"sync"

	"go.dedis.ch/lino/linotls"
)

// InMemoryStore is a certificate storage that keeps the certificates in
// memory only, which means it does not persist.
//
// - implements certstore.Storage
type InMemoryStore struct {
	certs *sync.Map
}

// NewInMemoryStore creates a new empty certificate storage.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		certs: &sync.Map{},
	}
}

// Store implements certstore.Storage. It stores the certificate with the
// server name as the key.
func (s *InMemoryStore) Store(name string, crt linotls.Certificate) error {
	s.certs.Store(name, crt)

	return nil
}

// Load implements certstore.Storage. It looks for the certificate associated
// to the name. If it does not exist, it will return nil.
func (s *InMemoryStore) Load(name string) (*linotls.Certificate, error) {
	val, found := s.certs.Load(name)
	if !found {
		return nil, nil
	}

	crt := val.(linotls.Certificate)

	return &crt, nil
}

// Delete implements certstore.Storage. It deletes the certificate associated
// to the name if any, otherwise it does nothing.
func (s *InMemoryStore) Delete(name string) error {
	s.certs.Delete(name)

	return nil
}

// Range implements certstore.Storage. It iterates over all the certificates
// stored as long as the callback return true.
func (s *InMemoryStore) Range(fn func(name string, crt linotls.Certificate) bool) error {
	s.certs.Range(func(key, value interface{}) bool {
		return fn(key.(string), value.(linotls.Certificate))
	})

	return nil
}
