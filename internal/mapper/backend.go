package mapper

import "fmt"

// Variant names the mapper backend selector, matching the "source_mapper"
// configuration option from spec §6.
type Variant string

const (
	VariantMmap   Variant = "mmap"
	VariantPread  Variant = "pread"
	VariantStatic Variant = "static"
	VariantHTTP   Variant = "http"
)

// OpenFile opens path using the requested file-based variant (mmap or
// pread); VariantStatic and VariantHTTP are opened via NewStatic/OpenHTTP
// directly since they don't take a filesystem path.
func OpenFile(variant Variant, path string) (Backend, error) {
	switch variant {
	case "", VariantMmap:
		return OpenMmap(path)
	case VariantPread:
		f, err := openPread(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("mapper: unsupported file variant %q", variant)
	}
}
