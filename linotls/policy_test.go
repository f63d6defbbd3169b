package linotls

import (
	"crypto/tls"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstallDefaultPolicy(t *testing.T) {
	defaultPolicy.Store(nil)
	defer defaultPolicy.Store(nil)

	installed := InstallDefaultPolicy(Policy{MinVersion: tls.VersionTLS13})
	require.Equal(t, uint16(tls.VersionTLS13), installed.MinVersion)

	// The first installation wins, later ones only read it back.
	installed = InstallDefaultPolicy(Policy{MinVersion: tls.VersionTLS10})
	require.Equal(t, uint16(tls.VersionTLS13), installed.MinVersion)
}

func TestInstallDefaultPolicy_concurrent(t *testing.T) {
	defaultPolicy.Store(nil)
	defer defaultPolicy.Store(nil)

	versions := []uint16{tls.VersionTLS12, tls.VersionTLS13}
	results := make([]Policy, 8)

	var wg sync.WaitGroup
	for i := 0; i < len(results); i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			results[n] = InstallDefaultPolicy(Policy{MinVersion: versions[n%2]})
		}(i)
	}

	wg.Wait()

	// Whichever one won, they all read the same policy.
	for _, res := range results {
		require.Equal(t, results[0].MinVersion, res.MinVersion)
	}
}

func TestInstallDefaultPolicy_compile(t *testing.T) {
	defaultPolicy.Store(nil)
	defer defaultPolicy.Store(nil)

	InstallDefaultPolicy(Policy{
		MinVersion:   tls.VersionTLS13,
		CipherSuites: []uint16{tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
		},
	})

	cfg, err := makeTLSConfig(NewConfig().WithFallback(makeTestCert(t, nil, nil)))
	require.NoError(t, err)

	require.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	require.Equal(t, []uint16{tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256}, cfg.CipherSuites)
	require.Equal(t, []tls.CurveID{tls.X25519}, cfg.CurvePreferences)
}

func TestCurrentPolicy_baseline(t *testing.T) {
	defaultPolicy.Store(nil)
	defer defaultPolicy.Store(nil)

	policy := currentPolicy()
	require.Equal(t, uint16(tls.VersionTLS12), policy.MinVersion)
	require.Empty(t, policy.CipherSuites)
}
