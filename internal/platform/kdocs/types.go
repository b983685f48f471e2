package kdocs

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mingfai/stockledger/internal/domain"
)

// flexToken unmarshals from a JSON string or number, since the script is
// free to store the data version either way.
type flexToken string

func (f *flexToken) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexToken(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexToken(n.String())
	return nil
}

// apiRecord is one ledger document as the script stores it: dh is the order
// number, dw the counterparty, and qd the goods list as positional
// [name, unit, quantity, amount] rows.
type apiRecord struct {
	DH string    `json:"dh"`
	DW string    `json:"dw"`
	QD []apiLine `json:"qd"`
}

// apiLine decodes one positional goods row. A row must be an array whose
// first element is the product name; a null or absent unit becomes the empty
// string, and a missing or non-numeric quantity/amount is tolerated as zero
// rather than aborting the fetch.
type apiLine struct {
	Product  string
	Unit     string
	Quantity float64
	Amount   float64
}

func (l *apiLine) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("goods row is not an array: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("goods row is empty")
	}

	if err := json.Unmarshal(raw[0], &l.Product); err != nil {
		return fmt.Errorf("goods row product: %w", err)
	}
	if len(raw) > 1 {
		l.Unit = decodeString(raw[1])
	}
	if len(raw) > 2 {
		l.Quantity = decodeNumber(raw[2])
	}
	if len(raw) > 3 {
		l.Amount = decodeNumber(raw[3])
	}
	return nil
}

// MarshalJSON re-encodes the line in the positional form the script expects.
func (l apiLine) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.Product, l.Unit, l.Quantity, l.Amount})
}

// decodeString tolerates null and numeric cells where a string is expected.
func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// decodeNumber tolerates null, absent, and string-encoded numeric cells.
func decodeNumber(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

// toDomain converts a script document to a domain record, rejecting
// documents that are missing their primary key or counterparty.
func (r *apiRecord) toDomain() (domain.OrderRecord, error) {
	if r.DH == "" {
		return domain.OrderRecord{}, fmt.Errorf("%w: missing order number", domain.ErrMalformedRecord)
	}
	if r.DW == "" {
		return domain.OrderRecord{}, fmt.Errorf("%w: missing counterparty", domain.ErrMalformedRecord)
	}

	lines := make([]domain.LineItem, 0, len(r.QD))
	for _, q := range r.QD {
		lines = append(lines, domain.LineItem{
			Product:  q.Product,
			Unit:     q.Unit,
			Quantity: q.Quantity,
			Amount:   q.Amount,
		})
	}
	return domain.OrderRecord{
		ID:           r.DH,
		Counterparty: r.DW,
		Lines:        lines,
	}, nil
}

// fromDomain builds the positional [dh, dw, qd] triple the update API takes.
func fromDomain(rec domain.OrderRecord) []any {
	qd := make([][]any, 0, len(rec.Lines))
	for _, li := range rec.Lines {
		qd = append(qd, []any{li.Product, li.Unit, li.Quantity, li.Amount})
	}
	return []any{rec.ID, rec.Counterparty, qd}
}
