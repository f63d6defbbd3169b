// Package linotls is an implementation of the listener abstraction that
// terminates TLS on top of an inner listener.
//
// The listener does not bind a network endpoint itself: it activates the
// inner listener and negotiates TLS on every stream the transport accepts.
// Which certificate is served is decided per connection by the server name
// the client announces, with a fallback certificate for the clients that
// announce none, or an unknown one.
//
// The certificates are not fixed at startup. Configurations are pushed on a
// feed and the acceptor applies them between accepts, so that certificates
// can be rotated without interrupting the service. A configuration that does
// not compile is discarded and the previous one keeps serving.
//
// Documentation Last Review: 14.08.2026
package linotls

import (
	"crypto/tls"
	"sort"
)

// Certificate describes one certificate before it is compiled. The byte
// contents are only parsed when the configuration is turned into an engine
// configuration, no I/O happens in this package.
type Certificate struct {
	// Cert is the PEM-encoded certificate chain, leaf first.
	Cert []byte

	// Key is the PEM-encoded private key of the leaf certificate.
	Key []byte

	// OCSP is an optional DER-encoded OCSP response stapled to the
	// handshakes.
	OCSP []byte
}

// clientAuth is the client authentication policy of a configuration.
type clientAuth struct {
	mode   tls.ClientAuthType
	anchor []byte
}

// Config describes the certificates served by an acceptor and its client
// authentication policy. The setters can be chained:
//
//	cfg := linotls.NewConfig().
//		WithFallback(fallback).
//		WithCertificate("example.com", crt)
//
// A configuration is descriptive only and cheap to build. It must not be
// modified anymore once pushed on a feed.
type Config struct {
	certificates map[string]Certificate
	fallback     *Certificate
	clientAuth   clientAuth
}

// NewConfig returns a new empty configuration. It compiles as it is, but
// every handshake is then rejected for lack of a certificate.
func NewConfig() *Config {
	return &Config{
		certificates: make(map[string]Certificate),
	}
}

// WithCertificate sets the certificate served to the clients announcing
// exactly the given server name. It returns the configuration.
func (c *Config) WithCertificate(name string, crt Certificate) *Config {
	c.certificates[name] = crt

	return c
}

// WithFallback sets the certificate served to the clients announcing no
// server name, or one that has no dedicated certificate. It returns the
// configuration.
func (c *Config) WithFallback(crt Certificate) *Config {
	c.fallback = &crt

	return c
}

// WithOptionalClientAuth makes the acceptor ask the clients for a
// certificate, and verify it against the anchor when one is presented. The
// anchor is a PEM-encoded set of trusted certificates. It returns the
// configuration.
func (c *Config) WithOptionalClientAuth(anchor []byte) *Config {
	c.clientAuth = clientAuth{
		mode:   tls.VerifyClientCertIfGiven,
		anchor: anchor,
	}

	return c
}

// WithRequiredClientAuth makes the acceptor reject the clients that do not
// present a certificate verifying against the anchor. The anchor is a
// PEM-encoded set of trusted certificates. It returns the configuration.
func (c *Config) WithRequiredClientAuth(anchor []byte) *Config {
	c.clientAuth = clientAuth{
		mode:   tls.RequireAndVerifyClientCert,
		anchor: anchor,
	}

	return c
}

// ServerNames returns the server names that have a dedicated certificate, in
// lexicographic order.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.certificates))
	for name := range c.certificates {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// HasFallback returns true when a fallback certificate is set.
func (c *Config) HasFallback() bool {
	return c.fallback != nil
}

// Validate compiles the configuration and returns the error when it fails,
// so that a broken configuration can be reported before being pushed to a
// live acceptor.
func (c *Config) Validate() error {
	_, err := makeTLSConfig(c)

	return err
}
