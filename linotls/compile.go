// This file contains the compilation of a configuration into the engine
// configuration handed over to crypto/tls, including the parsing of the PEM
// material of the certificates.
//
// Documentation Last Review: 14.08.2026
//

package linotls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"

	"golang.org/x/xerrors"
)

// Errors returned when a configuration fails to compile. They are wrapped
// with context, use errors.Is to match them.
var (
	// ErrInvalidCertificate indicates that a certificate chain holds no
	// certificate, or a malformed one.
	ErrInvalidCertificate = xerrors.New("invalid certificate")

	// ErrInvalidPrivateKey indicates that no supported private key block has
	// been found, or that it is malformed.
	ErrInvalidPrivateKey = xerrors.New("invalid private key")

	// ErrUnsupportedKey indicates that the private key is of a type the
	// engine cannot sign handshakes with.
	ErrUnsupportedKey = xerrors.New("unsupported private key")

	// ErrKeyMismatch indicates that the private key does not pair with the
	// public key of the leaf certificate.
	ErrKeyMismatch = xerrors.New("private key does not match the certificate")

	// ErrInvalidTrustAnchor indicates that the client authentication anchor
	// holds no certificate, or a malformed one.
	ErrInvalidTrustAnchor = xerrors.New("invalid trust anchor")
)

const (
	certificateBlock = "CERTIFICATE"
	pkcs1Block       = "RSA PRIVATE KEY"
	pkcs8Block       = "PRIVATE KEY"
	sec1Block        = "EC PRIVATE KEY"
)

// alpnProtos is the application protocol list announced to the clients, in
// preference order.
var alpnProtos = []string{"h2", "http/1.1"}

// makeTLSConfig compiles a configuration into the engine configuration
// shared by every connection accepted while it is active. The first failure
// aborts the compilation, a configuration is applied in full or not at all.
func makeTLSConfig(c *Config) (*tls.Config, error) {
	resolver := certResolver{
		certificates: make(map[string]*tls.Certificate),
	}

	if c.fallback != nil {
		cert, err := makeCertifiedKey(*c.fallback)
		if err != nil {
			return nil, xerrors.Errorf("fallback certificate: %w", err)
		}

		resolver.fallback = cert
	}

	for name, crt := range c.certificates {
		cert, err := makeCertifiedKey(crt)
		if err != nil {
			return nil, xerrors.Errorf("certificate '%s': %w", name, err)
		}

		resolver.certificates[name] = cert
	}

	policy := currentPolicy()

	cfg := &tls.Config{
		GetCertificate:   resolver.resolve,
		MinVersion:       policy.MinVersion,
		CipherSuites:     policy.CipherSuites,
		CurvePreferences: policy.CurvePreferences,
		NextProtos:       alpnProtos,
	}

	if c.clientAuth.mode != tls.NoClientCert {
		pool, err := makeCertPool(c.clientAuth.anchor)
		if err != nil {
			return nil, xerrors.Errorf("client authentication: %w", err)
		}

		cfg.ClientAuth = c.clientAuth.mode
		cfg.ClientCAs = pool
	}

	return cfg, nil
}

// makeCertifiedKey compiles a certificate descriptor: it parses the chain
// and the key, checks that they pair, and staples the OCSP response when one
// is provided.
func makeCertifiedKey(crt Certificate) (*tls.Certificate, error) {
	chain, leaf, err := parseChain(crt.Cert)
	if err != nil {
		return nil, err
	}

	signer, err := parseSigner(crt.Key)
	if err != nil {
		return nil, err
	}

	public, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !public.Equal(signer.Public()) {
		return nil, ErrKeyMismatch
	}

	cert := &tls.Certificate{
		Certificate: chain,
		PrivateKey:  signer,
		Leaf:        leaf,
	}

	if len(crt.OCSP) > 0 {
		cert.OCSPStaple = crt.OCSP
	}

	return cert, nil
}

// parseChain extracts the DER certificates of a PEM chain, leaf first. PEM
// blocks of other types are skipped.
func parseChain(data []byte) ([][]byte, *x509.Certificate, error) {
	var chain [][]byte
	var leaf *x509.Certificate

	rest := data
	for {
		block, remaining := pem.Decode(rest)
		if block == nil {
			break
		}

		rest = remaining

		if block.Type != certificateBlock {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, xerrors.Errorf("%w: %v", ErrInvalidCertificate, err)
		}

		if leaf == nil {
			leaf = cert
		}

		chain = append(chain, block.Bytes)
	}

	if len(chain) == 0 {
		return nil, nil, xerrors.Errorf("%w: no certificate found", ErrInvalidCertificate)
	}

	return chain, leaf, nil
}

// parseSigner extracts the first supported private key of the PEM data. PEM
// blocks of unknown types are skipped so that the key can ship in a bundle
// alongside other material.
func parseSigner(data []byte) (crypto.Signer, error) {
	rest := data
	for {
		block, remaining := pem.Decode(rest)
		if block == nil {
			break
		}

		rest = remaining

		switch block.Type {
		case pkcs1Block:
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, xerrors.Errorf("%w: %v", ErrInvalidPrivateKey, err)
			}

			return key, nil

		case pkcs8Block:
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, xerrors.Errorf("%w: %v", ErrInvalidPrivateKey, err)
			}

			switch signer := key.(type) {
			case *rsa.PrivateKey:
				return signer, nil
			case *ecdsa.PrivateKey:
				return signer, nil
			case ed25519.PrivateKey:
				return signer, nil
			default:
				return nil, xerrors.Errorf("%w: %T", ErrUnsupportedKey, key)
			}

		case sec1Block:
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, xerrors.Errorf("%w: %v", ErrInvalidPrivateKey, err)
			}

			return key, nil
		}
	}

	return nil, xerrors.Errorf("%w: no private key found", ErrInvalidPrivateKey)
}

// makeCertPool parses a PEM set of trusted certificates into a pool.
func makeCertPool(data []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	count := 0

	rest := data
	for {
		block, remaining := pem.Decode(rest)
		if block == nil {
			break
		}

		rest = remaining

		if block.Type != certificateBlock {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, xerrors.Errorf("%w: %v", ErrInvalidTrustAnchor, err)
		}

		pool.AddCert(cert)
		count++
	}

	if count == 0 {
		return nil, xerrors.Errorf("%w: no certificate found", ErrInvalidTrustAnchor)
	}

	return pool, nil
}
