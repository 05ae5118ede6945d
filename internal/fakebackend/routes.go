package fakebackend

// Route patterns served by the development backend.
const (
	RouteAuthLogin = "POST /auth/login"

	RouteCompanyCreate = "POST /companies"
	RouteCompanyList   = "GET /companies"
	RouteCompanyGet    = "GET /companies/{cid}"

	RouteInvoicePDF  = "GET /companies/{cid}/invoices/{id}/pdf"
	RouteReports     = "GET /companies/{cid}/reports/{kind}"
	RouteImports     = "POST /companies/{cid}/imports/{kind}"
	RouteSalesPred   = "GET /companies/{cid}/predictions/sales"
	RouteDemandPred  = "GET /companies/{cid}/predictions/demand"
	collectionPrefix = "/companies/{cid}/"
)

// Company-scoped collections with plain CRUD routes.
const (
	CollectionCustomers = "customers"
	CollectionEmployees = "employees"
	CollectionItems     = "items"
	CollectionInvoices  = "invoices"
)
