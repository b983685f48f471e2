package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mingfai/stockledger/internal/domain"
)

func record(id, party string, lines ...domain.LineItem) domain.OrderRecord {
	return domain.OrderRecord{ID: id, Counterparty: party, Lines: lines}
}

func line(product, unit string, qty, amount float64) domain.LineItem {
	return domain.LineItem{Product: product, Unit: unit, Quantity: qty, Amount: amount}
}

func TestRebuild_PriceAggregation(t *testing.T) {
	// Widget unit prices in scan order: 5, 5, 10, and one quantity-zero line
	// contributing 0. Distinct nonzero set {5, 10}; markup x2.
	records := []domain.OrderRecord{
		record("RKD20240101001", "Acme Supply",
			line("Widget", "box", 2, 10), // 5
			line("Widget", "box", 1, 5),  // 5
		),
		record("RKD20240102001", "Acme Supply",
			line("Widget", "box", 1, 10), // 10
			line("Widget", "box", 0, 7),  // quantity zero -> 0
		),
	}

	proj := NewBuilder(2, "RKD").Rebuild(records)
	stat, ok := proj.Catalog["Widget"]
	require.True(t, ok)
	assert.Equal(t, "box", stat.Unit)
	assert.InDelta(t, 10, stat.LatestPrice, 1e-9) // first observed 5 x2
	assert.InDelta(t, 10, stat.MinPrice, 1e-9)
	assert.InDelta(t, 20, stat.MaxPrice, 1e-9)
	assert.InDelta(t, 15, stat.AvgPrice, 1e-9)
}

func TestRebuild_LatestPriceIsScanOrderFirst(t *testing.T) {
	// The record with the newer date comes first in the input; LatestPrice
	// must follow scan order, not the dates encoded in the order numbers.
	records := []domain.OrderRecord{
		record("RKD20240301001", "Acme Supply", line("Widget", "box", 1, 9)),
		record("RKD20240101001", "Acme Supply", line("Widget", "box", 1, 3)),
	}

	proj := NewBuilder(2, "RKD").Rebuild(records)
	assert.InDelta(t, 18, proj.Catalog["Widget"].LatestPrice, 1e-9)
}

func TestRebuild_AllZeroPrices(t *testing.T) {
	records := []domain.OrderRecord{
		record("RKD20240101001", "Acme Supply",
			line("Scrap", "", 0, 0),
			line("Scrap", "", 4, 0),
		),
	}

	proj := NewBuilder(2, "RKD").Rebuild(records)
	stat := proj.Catalog["Scrap"]
	assert.Zero(t, stat.LatestPrice)
	assert.Zero(t, stat.MinPrice)
	assert.Zero(t, stat.MaxPrice)
	assert.Zero(t, stat.AvgPrice)
}

func TestRebuild_MissingUnitPlaceholder(t *testing.T) {
	records := []domain.OrderRecord{
		record("RKD20240101001", "Acme Supply", line("Bolt", "", 2, 4)),
		record("RKD20240102001", "Acme Supply", line("Bolt", "bag", 2, 4)),
	}

	proj := NewBuilder(2, "RKD").Rebuild(records)
	// Unit comes from the first occurrence, normalized to the placeholder.
	assert.Equal(t, "-", proj.Catalog["Bolt"].Unit)
}

func TestRebuild_Classification(t *testing.T) {
	records := []domain.OrderRecord{
		record("RKD20240101001", "Acme Supply"),
		record("CKD20240101001", "North Retail"),
	}

	proj := NewBuilder(2, "RKD").Rebuild(records)
	assert.Contains(t, proj.Parties.Suppliers, "Acme Supply")
	assert.NotContains(t, proj.Parties.Customers, "Acme Supply")
	assert.Contains(t, proj.Parties.Customers, "North Retail")
	assert.NotContains(t, proj.Parties.Suppliers, "North Retail")
}

func TestRebuild_IndexLastWriteWins(t *testing.T) {
	records := []domain.OrderRecord{
		record("RKD20240101001", "Acme Supply"),
		record("RKD20240101001", "Beta Supply"),
	}

	proj := NewBuilder(2, "RKD").Rebuild(records)
	require.Len(t, proj.Index, 1)
	assert.Equal(t, "Beta Supply", proj.Index["RKD20240101001"].Counterparty)
}

func TestRebuild_DoesNotMutateInput(t *testing.T) {
	records := []domain.OrderRecord{
		record("RKD20240101001", "Acme Supply", line("Widget", "box", 2, 10)),
	}
	before := records[0]

	_ = NewBuilder(2, "RKD").Rebuild(records)
	assert.Equal(t, before, records[0])
}

func TestRebuild_EmptyInput(t *testing.T) {
	proj := NewBuilder(2, "RKD").Rebuild(nil)
	assert.Empty(t, proj.Catalog)
	assert.Empty(t, proj.Index)
	assert.Empty(t, proj.Parties.Suppliers)
	assert.Empty(t, proj.Parties.Customers)
}
