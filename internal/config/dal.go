package config

import (
	"fmt"

	"github.com/marfs-core/marfs/internal/dal"
)

// dalVariants maps the config file's access-method strings onto the
// dal.Variant the registry expects, keeping the YAML vocabulary
// (original_source's MarFS_AccessMethod names) decoupled from the Go
// package's own constant spelling.
var dalVariants = map[AccessMethod]dal.Variant{
	AccessMethodPOSIX: dal.VariantPOSIX,
	AccessMethodSemi:  dal.VariantSEMI,
	AccessMethodS3:    dal.VariantS3,
	AccessMethodNoop:  dal.VariantNOOP,
	AccessMethodMC:    dal.VariantMC,
}

// Backend constructs the dal.Backend this repo's access method selects.
func (r *Repo) Backend(cfg map[string]interface{}) (dal.Backend, error) {
	variant, ok := dalVariants[r.DAL]
	if !ok {
		return nil, fmt.Errorf("config: repo %q has unrecognized dal %q", r.Name, r.DAL)
	}
	backend, err := dal.New(variant, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: repo %q: %w", r.Name, err)
	}
	return backend, nil
}
