package certstore

import (
	"go.dedis.ch/lino/linotls"
	"golang.org/x/xerrors"
)

// Option is a function to set an optional parameter of the assembled
// configuration.
type Option func(*linotls.Config)

// WithOptionalClientAuth sets the client authentication of the assembled
// configuration to verify the certificate of the clients that present one.
func WithOptionalClientAuth(anchor []byte) Option {
	return func(cfg *linotls.Config) {
		cfg.WithOptionalClientAuth(anchor)
	}
}

// WithRequiredClientAuth sets the client authentication of the assembled
// configuration to reject the clients that do not present a valid
// certificate.
func WithRequiredClientAuth(anchor []byte) Option {
	return func(cfg *linotls.Config) {
		cfg.WithRequiredClientAuth(anchor)
	}
}

// MakeConfig assembles a configuration out of the certificates currently held
// by the storage. The certificate stored under FallbackName becomes the
// fallback one. The configuration is validated before it is returned, so that
// it is safe to push to a live acceptor.
func MakeConfig(storage Storage, opts ...Option) (*linotls.Config, error) {
	cfg := linotls.NewConfig()

	err := storage.Range(func(name string, crt linotls.Certificate) bool {
		if name == FallbackName {
			cfg.WithFallback(crt)
		} else {
			cfg.WithCertificate(name, crt)
		}

		return true
	})
	if err != nil {
		return nil, xerrors.Errorf("while reading the storage: %v", err)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %v", err)
	}

	return cfg, nil
}
