// Utilities to generate the certificate material of the tests. Everything is
// created in memory, no fixture is read from the disk.

package linotls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeTemplate(t *testing.T, names ...string) *x509.Certificate {
	t.Helper()

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	return &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "lino test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		DNSNames: names,
	}
}

// makeTestCA returns a self-signed authority: its PEM encoding, and the
// parsed certificate with its key to issue more material.
func makeTestCA(t *testing.T) ([]byte, *x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := makeTemplate(t)
	tmpl.Subject = pkix.Name{CommonName: "lino test authority"}
	tmpl.IsCA = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	tmpl.BasicConstraintsValid = true

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	return caPEM, cert, key
}

// makeTestCert returns a descriptor with an ECDSA key in a SEC1 block,
// issued by the given authority, or self-signed when none is given.
func makeTestCert(t *testing.T, caCert *x509.Certificate, caKey *ecdsa.PrivateKey,
	names ...string) Certificate {

	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := makeTemplate(t, names...)

	parent := tmpl
	signer := crypto.Signer(key)
	if caCert != nil {
		parent = caCert
		signer = caKey
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, key.Public(), signer)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	return Certificate{
		Cert: pem.EncodeToMemory(&pem.Block{Type: certificateBlock, Bytes: der}),
		Key:  pem.EncodeToMemory(&pem.Block{Type: sec1Block, Bytes: keyDER}),
	}
}

// makeRSACert returns a self-signed descriptor with the key in a PKCS#1
// block.
func makeRSACert(t *testing.T, names ...string) Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := makeTemplate(t, names...)

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)

	return Certificate{
		Cert: pem.EncodeToMemory(&pem.Block{Type: certificateBlock, Bytes: der}),
		Key: pem.EncodeToMemory(&pem.Block{
			Type:  pkcs1Block,
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}),
	}
}

// makeEd25519Cert returns a self-signed descriptor with the key in a PKCS#8
// block.
func makeEd25519Cert(t *testing.T, names ...string) Certificate {
	t.Helper()

	public, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tmpl := makeTemplate(t, names...)
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, public, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return Certificate{
		Cert: pem.EncodeToMemory(&pem.Block{Type: certificateBlock, Bytes: der}),
		Key:  pem.EncodeToMemory(&pem.Block{Type: pkcs8Block, Bytes: keyDER}),
	}
}

// makeClientPair returns a certificate signed by the authority, ready to be
// presented by a test client.
func makeClientPair(t *testing.T, caCert *x509.Certificate, caKey *ecdsa.PrivateKey) tls.Certificate {
	t.Helper()

	crt := makeTestCert(t, caCert, caKey, "client.test")

	pair, err := tls.X509KeyPair(crt.Cert, crt.Key)
	require.NoError(t, err)

	return pair
}
