package linotls

import (
	"crypto/tls"
	"sync/atomic"
)

// Policy pins the handshake parameters shared by every configuration
// compiled in the process: the minimum protocol version and, optionally, the
// cipher suites and the curves. Empty slices leave the engine defaults in
// place.
type Policy struct {
	MinVersion       uint16
	CipherSuites     []uint16
	CurvePreferences []tls.CurveID
}

// defaultPolicy is the policy every compilation reads. It is installed at
// most once for the lifetime of the process.
var defaultPolicy atomic.Pointer[Policy]

// InstallDefaultPolicy installs the policy used by the compilations, unless
// one is already installed. It returns the policy actually in place, so that
// concurrent first uses converge on a single winner.
func InstallDefaultPolicy(p Policy) Policy {
	defaultPolicy.CompareAndSwap(nil, &p)

	return *defaultPolicy.Load()
}

// currentPolicy returns the installed policy, installing the baseline (TLS
// 1.2 at least, engine defaults otherwise) when none is installed yet.
func currentPolicy() Policy {
	return InstallDefaultPolicy(Policy{MinVersion: tls.VersionTLS12})
}
