// Package diskfeed loads TLS configurations from a manifest file on the
// disk, and feeds a fresh one to an acceptor every time it changes.
//
// The manifest is a YAML file listing the fallback certificate, the
// certificates dedicated to a server name, and the client authentication
// policy. The file paths it contains are resolved relative to the manifest
// itself:
//
//	fallback:
//	  cert: fallback.crt
//	  key: fallback.key
//	certificates:
//	  - name: example.com
//	    cert: example.crt
//	    key: example.key
//	    ocsp: example.ocsp
//	client_auth:
//	  mode: required
//	  anchor: clients.crt
//
// Documentation Last Review: 14.08.2026
package diskfeed

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.dedis.ch/lino/linotls"
	"golang.org/x/xerrors"
)

// Client authentication modes accepted in a manifest.
const (
	authNone     = "none"
	authOptional = "optional"
	authRequired = "required"
)

// manifestEntry describes one certificate of the manifest.
type manifestEntry struct {
	Name string `koanf:"name"`
	Cert string `koanf:"cert"`
	Key  string `koanf:"key"`
	OCSP string `koanf:"ocsp"`
}

// manifestAuth describes the client authentication policy of the manifest.
type manifestAuth struct {
	Mode   string `koanf:"mode"`
	Anchor string `koanf:"anchor"`
}

// manifest is the content of a manifest file.
type manifest struct {
	Fallback     *manifestEntry  `koanf:"fallback"`
	Certificates []manifestEntry `koanf:"certificates"`
	ClientAuth   manifestAuth    `koanf:"client_auth"`
}

// Load reads the manifest and the certificate files it points to, and
// returns the configuration they describe. The configuration is validated
// before it is returned.
func Load(path string) (*linotls.Config, error) {
	k := koanf.New(".")

	err := k.Load(file.Provider(path), yaml.Parser())
	if err != nil {
		return nil, xerrors.Errorf("couldn't read manifest: %v", err)
	}

	content := manifest{}

	err = k.Unmarshal("", &content)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode manifest: %v", err)
	}

	dir := filepath.Dir(path)

	cfg := linotls.NewConfig()

	if content.Fallback != nil {
		crt, err := readEntry(dir, *content.Fallback)
		if err != nil {
			return nil, xerrors.Errorf("fallback: %v", err)
		}

		cfg.WithFallback(crt)
	}

	for _, entry := range content.Certificates {
		if entry.Name == "" {
			return nil, xerrors.New("certificate with no name")
		}

		crt, err := readEntry(dir, entry)
		if err != nil {
			return nil, xerrors.Errorf("certificate '%s': %v", entry.Name, err)
		}

		cfg.WithCertificate(entry.Name, crt)
	}

	err = readAuth(dir, content.ClientAuth, cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %v", err)
	}

	return cfg, nil
}

// readEntry reads the certificate files of a manifest entry.
func readEntry(dir string, entry manifestEntry) (linotls.Certificate, error) {
	crt := linotls.Certificate{}

	cert, err := os.ReadFile(resolve(dir, entry.Cert))
	if err != nil {
		return crt, xerrors.Errorf("couldn't read certificate: %v", err)
	}

	key, err := os.ReadFile(resolve(dir, entry.Key))
	if err != nil {
		return crt, xerrors.Errorf("couldn't read key: %v", err)
	}

	crt.Cert = cert
	crt.Key = key

	if entry.OCSP != "" {
		ocsp, err := os.ReadFile(resolve(dir, entry.OCSP))
		if err != nil {
			return crt, xerrors.Errorf("couldn't read ocsp response: %v", err)
		}

		crt.OCSP = ocsp
	}

	return crt, nil
}

// readAuth applies the client authentication policy of the manifest to the
// configuration.
func readAuth(dir string, auth manifestAuth, cfg *linotls.Config) error {
	switch auth.Mode {
	case "", authNone:
		return nil
	case authOptional, authRequired:
	default:
		return xerrors.Errorf("unknown client auth mode '%s'", auth.Mode)
	}

	anchor, err := os.ReadFile(resolve(dir, auth.Anchor))
	if err != nil {
		return xerrors.Errorf("couldn't read trust anchor: %v", err)
	}

	if auth.Mode == authOptional {
		cfg.WithOptionalClientAuth(anchor)
	} else {
		cfg.WithRequiredClientAuth(anchor)
	}

	return nil
}

// resolve returns the path as it is when absolute, otherwise relative to the
// manifest folder.
func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}
