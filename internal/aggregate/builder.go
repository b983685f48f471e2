// Package aggregate rebuilds the derived projections (product catalog, party
// directory, order index) from a raw record snapshot. A rebuild is a pure
// function of its input: one linear pass over the records, then one pass per
// product, never mutating the record slice.
package aggregate

import (
	"strings"

	"github.com/mingfai/stockledger/internal/domain"
)

// missingUnit is the placeholder stored when a line item has no unit.
const missingUnit = "-"

// Builder derives projections from raw records under a fixed pricing policy.
type Builder struct {
	markup        float64
	inboundPrefix string
}

// NewBuilder creates a Builder. markup scales every derived price; it is a
// business policy of the ledger (default 2), not an algorithmic constant.
// inboundPrefix is the order-number prefix that marks a record as a receipt.
func NewBuilder(markup float64, inboundPrefix string) *Builder {
	return &Builder{markup: markup, inboundPrefix: inboundPrefix}
}

// productAcc accumulates one product's observations during the record pass.
type productAcc struct {
	unit   string // from the first occurrence in scan order
	prices []float64
}

// Rebuild produces a fresh set of projections from records, replacing any
// previous generation wholesale.
//
// The records are processed exactly in the order given. In particular
// ProductStat.LatestPrice is the first unit price observed in that order —
// "latest" only means chronologically newest when the caller pre-sorts the
// records, which the ledger source does not do. This scan-order behaviour is
// load-bearing and must not be "fixed" to use timestamps.
func (b *Builder) Rebuild(records []domain.OrderRecord) domain.Projections {
	parties := domain.PartyDirectory{
		Suppliers: make(map[string]struct{}),
		Customers: make(map[string]struct{}),
	}
	index := make(domain.OrderIndex, len(records))
	accs := make(map[string]*productAcc)
	var order []string // product names in first-seen order

	for _, rec := range records {
		if strings.HasPrefix(rec.ID, b.inboundPrefix) {
			parties.Suppliers[rec.Counterparty] = struct{}{}
		} else {
			parties.Customers[rec.Counterparty] = struct{}{}
		}

		// Last write wins on an ID collision; the uniqueness invariant says
		// this should not happen, but the pass must not fail on it.
		index[rec.ID] = rec

		for _, li := range rec.Lines {
			acc, ok := accs[li.Product]
			if !ok {
				unit := li.Unit
				if unit == "" {
					unit = missingUnit
				}
				acc = &productAcc{unit: unit}
				accs[li.Product] = acc
				order = append(order, li.Product)
			}
			acc.prices = append(acc.prices, li.UnitPrice())
		}
	}

	catalog := make(map[string]domain.ProductStat, len(accs))
	for _, name := range order {
		catalog[name] = b.stat(accs[name])
	}

	return domain.Projections{Catalog: catalog, Parties: parties, Index: index}
}

// stat folds one product's observed prices into its catalog entry. Duplicate
// and zero prices are dropped before the min/max/avg fold; when nothing
// survives the filter all three stay zero.
func (b *Builder) stat(acc *productAcc) domain.ProductStat {
	distinct := make([]float64, 0, len(acc.prices))
	seen := make(map[float64]struct{}, len(acc.prices))
	for _, p := range acc.prices {
		if p == 0 {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		distinct = append(distinct, p)
	}

	stat := domain.ProductStat{
		Unit:        acc.unit,
		LatestPrice: acc.prices[0] * b.markup,
	}
	if len(distinct) == 0 {
		return stat
	}

	min, max, sum := distinct[0], distinct[0], 0.0
	for _, p := range distinct {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
		sum += p
	}
	stat.MinPrice = min * b.markup
	stat.MaxPrice = max * b.markup
	stat.AvgPrice = sum / float64(len(distinct)) * b.markup
	return stat
}
