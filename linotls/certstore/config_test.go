package certstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/lino/linotls"
	"golang.org/x/xerrors"
)

func TestMakeConfig(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Store(FallbackName, makeTestCert(t)))
	require.NoError(t, store.Store("example.com", makeTestCert(t, "example.com")))

	cfg, err := MakeConfig(store)
	require.NoError(t, err)
	require.True(t, cfg.HasFallback())
	require.Equal(t, []string{"example.com"}, cfg.ServerNames())
}

func TestMakeConfig_clientAuth(t *testing.T) {
	store := NewInMemoryStore()

	anchor := makeTestCert(t)

	require.NoError(t, store.Store(FallbackName, makeTestCert(t)))

	_, err := MakeConfig(store, WithOptionalClientAuth(anchor.Cert))
	require.NoError(t, err)

	_, err = MakeConfig(store, WithRequiredClientAuth(anchor.Cert))
	require.NoError(t, err)

	_, err = MakeConfig(store, WithRequiredClientAuth([]byte("not a pem")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}

func TestMakeConfig_badCertificate(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Store("example.com", linotls.Certificate{}))

	_, err := MakeConfig(store)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}

func TestMakeConfig_badStorage(t *testing.T) {
	_, err := MakeConfig(badStorage{})
	require.EqualError(t, err, "while reading the storage: oops")
}

// -----------------------------------------------------------------------------
// Utility functions

// badStorage is a storage that only fails.
//
// - implements certstore.Storage
type badStorage struct {
	Storage
}

func (badStorage) Range(func(string, linotls.Certificate) bool) error {
	return xerrors.New("oops")
}

func makeTestCert(t *testing.T, names ...string) linotls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "lino test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     names,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	return linotls.Certificate{
		Cert: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Key:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}
}
