// Package ordernum generates and validates human-readable order numbers of
// the form {prefix}{YYYYMMDD}{NNN}, probing the order index for the smallest
// unused sequence suffix.
package ordernum

import (
	"fmt"
	"regexp"
	"time"

	"github.com/mingfai/stockledger/internal/domain"
)

// Generator produces collision-free order numbers against a given index. It
// is stateless: the same (date, direction, index) always yields the same
// number, and a result is only as fresh as the index it was probed against.
// Two sessions generating against the same remote dataset can still race; the
// final uniqueness check belongs to whoever commits the record.
type Generator struct {
	inboundPrefix  string
	outboundPrefix string
	seqWidth       int
	pattern        *regexp.Regexp
}

// New creates a Generator for the given direction prefixes and sequence
// width (the zero-padded digit count, 3 in the stock configuration).
func New(inboundPrefix, outboundPrefix string, seqWidth int) *Generator {
	return &Generator{
		inboundPrefix:  inboundPrefix,
		outboundPrefix: outboundPrefix,
		seqWidth:       seqWidth,
		pattern: regexp.MustCompile(fmt.Sprintf(`^(%s|%s)\d{8}\d{%d}$`,
			regexp.QuoteMeta(inboundPrefix), regexp.QuoteMeta(outboundPrefix), seqWidth)),
	}
}

// prefixFor maps a direction to its order-number prefix.
func (g *Generator) prefixFor(dir domain.Direction) string {
	if dir == domain.Inbound {
		return g.inboundPrefix
	}
	return g.outboundPrefix
}

// Generate returns the first {prefix}{YYYYMMDD}{NNN} candidate, for NNN
// counting up from 1, that is absent from index. When every sequence value
// for the day is taken it returns domain.ErrSequenceExhausted; that is a
// capacity condition the caller must surface, not a retryable fault.
func (g *Generator) Generate(date time.Time, dir domain.Direction, index domain.OrderIndex) (string, error) {
	base := g.prefixFor(dir) + date.Format("20060102")
	limit := 1
	for i := 0; i < g.seqWidth; i++ {
		limit *= 10
	}

	for seq := 1; seq < limit; seq++ {
		candidate := fmt.Sprintf("%s%0*d", base, g.seqWidth, seq)
		if _, taken := index[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("ordernum: %w: %s %s has no free sequence",
		domain.ErrSequenceExhausted, dir, date.Format("2006-01-02"))
}

// Validate checks a user-supplied candidate: it must match the
// {prefix}{YYYYMMDD}{NNN} shape for the given date and direction, and must
// not already exist in index. Violations are rejected-input conditions,
// reported as domain.ErrInvalidOrderNumber or domain.ErrOrderNumberTaken.
func (g *Generator) Validate(candidate string, date time.Time, dir domain.Direction, index domain.OrderIndex) error {
	expected := g.prefixFor(dir) + date.Format("20060102")
	if !g.pattern.MatchString(candidate) || len(candidate) < len(expected) || candidate[:len(expected)] != expected {
		return fmt.Errorf("ordernum: %w: %q does not match %s + %d digits",
			domain.ErrInvalidOrderNumber, candidate, expected, g.seqWidth)
	}
	if _, taken := index[candidate]; taken {
		return fmt.Errorf("ordernum: %w: %s", domain.ErrOrderNumberTaken, candidate)
	}
	return nil
}

// DateOf recovers the calendar date embedded in an order number, for history
// views. It returns the zero time when the number is too short or the digits
// do not form a valid date.
func (g *Generator) DateOf(orderID string) time.Time {
	for _, prefix := range []string{g.inboundPrefix, g.outboundPrefix} {
		if len(orderID) >= len(prefix)+8 && orderID[:len(prefix)] == prefix {
			if ts, err := time.Parse("20060102", orderID[len(prefix):len(prefix)+8]); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
