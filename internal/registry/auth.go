package registry

import (
	"strings"

	registrytypes "github.com/docker/docker/api/types/registry"

	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/errors"
)

// Credentials maps a registry host to its auth config. Read-only after
// construction; it is parsed once per run, before any network call.
type Credentials map[string]registrytypes.AuthConfig

// ParseAuthEntries parses "registry:user:pass" entries into a credential
// map. Bare "user:pass" entries default to the public registry host.
func ParseAuthEntries(entries []string) (Credentials, error) {
	creds := Credentials{}
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		switch len(parts) {
		case 2:
			creds[config.DefaultHost] = registrytypes.AuthConfig{
				Username:      parts[0],
				Password:      parts[1],
				ServerAddress: config.DefaultHost,
			}
		case 3:
			creds[parts[0]] = registrytypes.AuthConfig{
				Username:      parts[1],
				Password:      parts[2],
				ServerAddress: parts[0],
			}
		default:
			return nil, errors.InvalidAuth(entry)
		}
	}
	return creds, nil
}

// Encoded returns the base64 auth payload for host, or an InvalidAuth error
// when no entry covers it.
func (c Credentials) Encoded(host string) (string, error) {
	auth, ok := c[host]
	if !ok {
		return "", errors.InvalidAuth(host)
	}
	encoded, err := registrytypes.EncodeAuthConfig(auth)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAuth, errors.SeverityFatal, "encode registry credentials")
	}
	return encoded, nil
}
