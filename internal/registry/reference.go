package registry

import (
	"fmt"

	"github.com/distribution/reference"

	"git.home.luguber.info/inful/shipwright/internal/config"
	"git.home.luguber.info/inful/shipwright/internal/errors"
)

// Reference composes the fully-qualified image reference for one artifact:
// <host>/<repository>/<name>:<version>. The composition is deterministic;
// byte-identical inputs yield byte-identical references, which is what the
// remote existence probe depends on.
func Reference(cfg config.RegistryConfig, name, version string) (reference.NamedTagged, error) {
	raw := fmt.Sprintf("%s/%s/%s:%s", cfg.Host, cfg.Repository, name, version)
	ref, err := reference.ParseNormalizedNamed(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, errors.SeverityFatal,
			fmt.Sprintf("invalid image reference %q", raw))
	}
	tagged, ok := ref.(reference.NamedTagged)
	if !ok {
		return nil, errors.New(errors.CategoryValidation, errors.SeverityFatal,
			fmt.Sprintf("image reference %q has no tag", raw))
	}
	return tagged, nil
}
