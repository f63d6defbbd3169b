// Package certstore defines a storage of certificate descriptors keyed by
// the server name they are served for, so that an operator can stage the
// certificates of an acceptor in a database and assemble configurations out
// of them.
package certstore

import "go.dedis.ch/lino/linotls"

// FallbackName is the reserved name under which the fallback certificate is
// stored. It cannot collide with a real server name.
const FallbackName = "*"

// Storage is an interface to manage the certificates served by an acceptor.
type Storage interface {
	// Store stores the certificate with the server name as the key.
	Store(name string, crt linotls.Certificate) error

	// Load returns the certificate associated with the name if any, otherwise
	// it returns nil.
	Load(name string) (*linotls.Certificate, error)

	// Delete removes the certificate associated with the name if any,
	// otherwise it does nothing.
	Delete(name string) error

	// Range iterates over the certificates held by the store as long as the
	// callback returns true.
	Range(fn func(name string, crt linotls.Certificate) bool) error
}
