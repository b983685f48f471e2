// Package domain defines the core data model of the inventory ledger client:
// raw order records as the remote ledger stores them, the durable snapshot
// envelope, and the projections derived from a snapshot.
package domain

import "time"

// Direction is the movement direction of an order record.
type Direction string

const (
	// Inbound is a goods receipt; the counterparty is a supplier.
	Inbound Direction = "inbound"
	// Outbound is a shipment; the counterparty is a customer.
	Outbound Direction = "outbound"
)

// LineItem is a single row of an order record's goods list.
type LineItem struct {
	Product  string
	Unit     string // empty when the source did not record one
	Quantity float64
	Amount   float64
}

// UnitPrice returns the per-unit price of the line, or 0 when the quantity
// is zero or missing.
func (li LineItem) UnitPrice() float64 {
	if li.Quantity == 0 {
		return 0
	}
	return li.Amount / li.Quantity
}

// OrderRecord is one transaction document from the remote ledger. ID is the
// order number and the primary key of the dataset; it is immutable once
// created and the dataset is append-only from the client's perspective.
type OrderRecord struct {
	ID           string
	Counterparty string
	Lines        []LineItem
}

// VersionToken is an opaque marker for the remote dataset's revision. The
// engine only ever tests tokens for equality.
type VersionToken string

// CacheEnvelope is the durable snapshot: the full record set together with
// the version token it was fetched under. It is written and cleared whole,
// never partially updated.
type CacheEnvelope struct {
	Version   VersionToken  `json:"version"`
	Records   []OrderRecord `json:"records"`
	FetchedAt time.Time     `json:"fetched_at"`
}
