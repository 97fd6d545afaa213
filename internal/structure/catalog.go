package structure

import (
	"net/http"

	"github.com/teknokomo/universo-platformo-backend/internal/platform/apierr"
)

// Catalog is an immutable lookup from structure version to the complete list
// of table definitions at that version. It is constructed once at process
// start; tests build their own scoped instances instead of mutating shared
// state.
type Catalog struct {
	versions [][]TableDefinition
}

// NewCatalog builds a catalog from the ordered version list. versions[0] is
// structure version 1.
func NewCatalog(versions [][]TableDefinition) *Catalog {
	copied := make([][]TableDefinition, len(versions))
	copy(copied, versions)
	return &Catalog{versions: copied}
}

// Current returns the newest registered structure version.
func (c *Catalog) Current() int {
	return len(c.versions)
}

// Get returns the table definitions for version. Version 0 is the empty
// pre-migration state. A version outside the registered range is a platform
// configuration error, fatal and non-retryable.
func (c *Catalog) Get(version int) ([]TableDefinition, error) {
	if version == 0 {
		return nil, nil
	}
	if version < 0 || version > len(c.versions) {
		return nil, apierr.Newf(http.StatusInternalServerError, apierr.CodeStructureVersionMissing,
			"structure version %d has no registered table definitions (known: 1..%d)", version, len(c.versions))
	}
	return c.versions[version-1], nil
}
