package shared

// Core platform permissions.
const (
	PermDashboardView = "dashboard.view"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"
)

// Catalog and point-of-sale permissions.
const (
	PermProductsView   = "products.view"
	PermProductsEdit   = "products.edit"
	PermProductsImport = "products.import"
	PermLabelsPrint    = "labels.print"
	PermPOSScan        = "pos.scan"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermDashboardView,
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
	}
}

// CatalogScopes lists the product and scanning permissions.
func CatalogScopes() []string {
	return []string{
		PermProductsView,
		PermProductsEdit,
		PermProductsImport,
		PermLabelsPrint,
		PermPOSScan,
	}
}
