package template

import "embed"

//go:embed templates/catalog.yaml
var defaultCatalogFS embed.FS

// DefaultCatalog parses the catalog shipped with the package. It covers
// every built-in category and is the starting point deployments overlay
// their overrides onto.
func DefaultCatalog() (Catalog, error) {
	return LoadCatalog(defaultCatalogFS, "templates/catalog.yaml")
}
