package linotls

import (
	"crypto/tls"

	"golang.org/x/xerrors"
)

// certResolver selects the certificate served to a client according to the
// server name it announces. A resolver is built by the compilation and never
// modified afterwards, so it is safely shared by concurrent handshakes.
type certResolver struct {
	certificates map[string]*tls.Certificate
	fallback     *tls.Certificate
}

// resolve returns the certificate registered for exactly the announced
// server name, or the fallback when there is no match. Without a fallback the
// handshake is rejected, which only the affected connection observes.
func (r certResolver) resolve(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, found := r.certificates[hello.ServerName]
	if found {
		return cert, nil
	}

	if r.fallback != nil {
		return r.fallback, nil
	}

	return nil, xerrors.Errorf("no certificate for server name '%s'", hello.ServerName)
}
