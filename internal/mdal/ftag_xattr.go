package mdal

import (
	"context"
	"fmt"

	"github.com/marfs-core/marfs/internal/ftag"
)

// WriteFTAG serializes f and stores it under FTAGXattrName. The MDAL is
// the sole author of this xattr (spec.md §4.4); callers should never
// set it directly through SetXattr.
func WriteFTAG(ctx context.Context, m MDAL, path string, f ftag.FTAG) error {
	if err := m.SetXattr(ctx, path, FTAGXattrName, []byte(f.String())); err != nil {
		return fmt.Errorf("mdal: write ftag xattr on %s: %w", path, err)
	}
	return nil
}

// ReadFTAG reads and parses the FTAG xattr from path.
func ReadFTAG(ctx context.Context, m MDAL, path string) (ftag.FTAG, error) {
	raw, err := m.GetXattr(ctx, path, FTAGXattrName)
	if err != nil {
		return ftag.FTAG{}, fmt.Errorf("mdal: read ftag xattr on %s: %w", path, err)
	}
	f, err := ftag.Parse(string(raw))
	if err != nil {
		return ftag.FTAG{}, fmt.Errorf("mdal: parse ftag xattr on %s: %w", path, err)
	}
	return f, nil
}
