package domain

// ProductStat holds the derived pricing statistics for one product. Every
// price field is already scaled by the configured markup multiplier.
//
// LatestPrice is the first unit price observed for the product in record scan
// order, not the chronologically newest one: the ledger source does not sort
// records by date before aggregation, and callers depend on that behaviour.
type ProductStat struct {
	Unit        string
	LatestPrice float64
	MaxPrice    float64
	MinPrice    float64
	AvgPrice    float64
}

// PartyDirectory classifies every counterparty seen in the dataset. The two
// sets are built from the same pass and are disjoint as long as a name does
// not appear on both inbound and outbound records.
type PartyDirectory struct {
	Suppliers map[string]struct{}
	Customers map[string]struct{}
}

// OrderIndex maps order numbers to their full records. It serves existence
// checks during order-number generation and detail lookups.
type OrderIndex map[string]OrderRecord

// Projections bundles the three views derived from one snapshot. A rebuild
// replaces all three as a unit; consumers never observe a catalog from one
// pass alongside an index from another.
type Projections struct {
	Catalog map[string]ProductStat
	Parties PartyDirectory
	Index   OrderIndex
}

// Movement is one inbound or outbound entry in a product's history: the
// per-record totals of every line that mentions the product.
type Movement struct {
	OrderID      string
	Date         string // YYYY-MM-DD, recovered from the order number
	Direction    Direction
	Counterparty string
	Quantity     float64
	Amount       float64 // markup-scaled, matching the catalog prices
}
