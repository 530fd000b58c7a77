package mdal

import "fmt"

// Variant names an MDAL backend kind (spec.md §4.4), mirroring
// internal/dal's Variant/registry pattern so both storage abstractions
// are chosen the same way: a name->constructor map consulted only at
// config load (spec.md §9 design note on DAL/MDAL vtables).
type Variant string

const (
	VariantPOSIX Variant = "posix"
	VariantMock  Variant = "mock"
)

// Constructor builds an MDAL from its YAML-sourced config node.
type Constructor func(cfg map[string]interface{}) (MDAL, error)

var registry = map[Variant]Constructor{}

// Register adds a backend constructor under name. Called from each
// backend file's init().
func Register(name Variant, ctor Constructor) {
	registry[name] = ctor
}

// New builds an MDAL for the named variant using cfg.
func New(name Variant, cfg map[string]interface{}) (MDAL, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("mdal: unknown variant %q", name)
	}
	return ctor(cfg)
}

func init() {
	Register(VariantPOSIX, func(cfg map[string]interface{}) (MDAL, error) {
		root, _ := cfg["root"].(string)
		if root == "" {
			return nil, fmt.Errorf("mdal: posix variant requires a non-empty \"root\" config entry")
		}
		return NewPosixMDAL(root), nil
	})
	Register(VariantMock, func(cfg map[string]interface{}) (MDAL, error) {
		return NewMockMDAL(), nil
	})
}
