package config

import (
	"fmt"

	"github.com/marfs-core/marfs/internal/mdal"
)

// mdalVariants maps the config file's dir_mdal/file_mdal strings onto
// the mdal.Variant the registry expects, keeping the YAML vocabulary
// decoupled from the Go package's own constant spelling (mirrors
// internal/config/dal.go's dalVariants).
var mdalVariants = map[string]mdal.Variant{
	"posix": mdal.VariantPOSIX,
	"mock":  mdal.VariantMock,
}

// FileBackend constructs the mdal.MDAL this namespace's FileMDAL names.
func (ns *Namespace) FileBackend(cfg map[string]interface{}) (mdal.MDAL, error) {
	return buildMDAL(ns.Name, "file_mdal", ns.FileMDAL, cfg)
}

// DirBackend constructs the mdal.MDAL this namespace's DirMDAL names.
func (ns *Namespace) DirBackend(cfg map[string]interface{}) (mdal.MDAL, error) {
	return buildMDAL(ns.Name, "dir_mdal", ns.DirMDAL, cfg)
}

func buildMDAL(nsName, field, name string, cfg map[string]interface{}) (mdal.MDAL, error) {
	variant, ok := mdalVariants[name]
	if !ok {
		return nil, fmt.Errorf("config: namespace %q has unrecognized %s %q", nsName, field, name)
	}
	backend, err := mdal.New(variant, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: namespace %q: %w", nsName, err)
	}
	return backend, nil
}
