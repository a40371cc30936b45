// Package mocks provides test doubles for ports interfaces.
//
// These mocks are simple, thread-safe, in-memory implementations suitable for
// unit testing. Each mock provides:
//
//   - Default behavior that mirrors the storage semantics
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for setting state directly
//
// # Usage Example
//
//	func TestResolver(t *testing.T) {
//		catalog := mocks.NewCatalog()
//		catalog.AddProduct(domain.Product{Brand: "Samsung", Model: "Galaxy S25"})
//		listing := catalog.AddListing(domain.Listing{SupplierID: 1, Label: "Samsung Galaxy S25"})
//
//		r := resolver.New(catalog, ...)
//		// ... run, then inspect catalog.ProductOf(listing)
//	}
//
// # Available Mocks
//
//   - Catalog: implements ports.CatalogRepository
//   - RunStore: implements ports.RunRepository
//   - Publisher: implements ports.EventPublisher
//   - Notifier: implements ports.Notifier
package mocks
