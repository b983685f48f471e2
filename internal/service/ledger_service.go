// Package service exposes the consumer-facing read API of the ledger client:
// refresh, projection reads, order-number generation, and record submission.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mingfai/stockledger/internal/aggregate"
	"github.com/mingfai/stockledger/internal/domain"
	"github.com/mingfai/stockledger/internal/ordernum"
	"github.com/mingfai/stockledger/internal/syncer"
)

// Policy bundles the ledger business rules the service needs beyond what its
// collaborators already encode.
type Policy struct {
	Markup        float64
	InboundPrefix string
}

// LedgerService coordinates the sync engine, the aggregation builder, and the
// order-number generator, and owns the current projection generation. The
// three projections are swapped as one unit: readers never observe a catalog
// from one rebuild next to an index from another.
type LedgerService struct {
	engine  *syncer.Engine
	builder *aggregate.Builder
	gen     *ordernum.Generator
	gw      domain.Gateway
	policy  Policy
	logger  *slog.Logger

	mu      sync.RWMutex
	proj    domain.Projections
	records []domain.OrderRecord
	version domain.VersionToken
	ready   bool
	authed  bool
}

// New creates a LedgerService with all required dependencies.
func New(
	engine *syncer.Engine,
	builder *aggregate.Builder,
	gen *ordernum.Generator,
	gw domain.Gateway,
	policy Policy,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		engine:  engine,
		builder: builder,
		gen:     gen,
		gw:      gw,
		policy:  policy,
		logger:  logger.With(slog.String("component", "ledger_service")),
	}
}

// Refresh synchronizes the snapshot and rebuilds the projections when the
// dataset changed (or on the first load of the session). A stale fallback is
// reported through the returned error wrapping domain.ErrStaleData while the
// dataset itself remains usable.
func (s *LedgerService) Refresh(ctx context.Context, force bool) (syncer.Dataset, error) {
	ds, err := s.engine.Refresh(ctx, force)
	if err != nil && !errors.Is(err, domain.ErrStaleData) {
		return syncer.Dataset{}, fmt.Errorf("ledger_service: refresh: %w", err)
	}

	s.mu.Lock()
	if ds.Changed || !s.ready || ds.Version != s.version {
		s.proj = s.builder.Rebuild(ds.Records)
		s.records = ds.Records
		s.version = ds.Version
		s.ready = true
		s.logger.InfoContext(ctx, "projections rebuilt",
			slog.String("version", string(ds.Version)),
			slog.Int("products", len(s.proj.Catalog)),
			slog.Int("orders", len(s.proj.Index)),
		)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.WarnContext(ctx, "serving stale dataset",
			slog.String("version", string(ds.Version)),
			slog.String("error", err.Error()),
		)
	}
	return ds, err
}

// Catalog returns a copy of the current product catalog.
func (s *LedgerService) Catalog() map[string]domain.ProductStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.ProductStat, len(s.proj.Catalog))
	for name, stat := range s.proj.Catalog {
		out[name] = stat
	}
	return out
}

// Parties returns a copy of the current party directory.
func (s *LedgerService) Parties() domain.PartyDirectory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.PartyDirectory{
		Suppliers: make(map[string]struct{}, len(s.proj.Parties.Suppliers)),
		Customers: make(map[string]struct{}, len(s.proj.Parties.Customers)),
	}
	for name := range s.proj.Parties.Suppliers {
		out.Suppliers[name] = struct{}{}
	}
	for name := range s.proj.Parties.Customers {
		out.Customers[name] = struct{}{}
	}
	return out
}

// OrderIndex returns a copy of the current order index.
func (s *LedgerService) OrderIndex() domain.OrderIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(domain.OrderIndex, len(s.proj.Index))
	for id, rec := range s.proj.Index {
		out[id] = rec
	}
	return out
}

// SearchProducts returns the catalog names containing term, case-insensitive,
// sorted for stable output. An empty term matches nothing.
func (s *LedgerService) SearchProducts(term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.proj.Catalog {
		if strings.Contains(strings.ToLower(name), term) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ProductHistory returns the movement rows for one product, in record scan
// order: per record, the summed quantity and markup-scaled amount of every
// line mentioning the product.
func (s *LedgerService) ProductHistory(name string) []domain.Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var moves []domain.Movement
	for _, rec := range s.records {
		var qty, amount float64
		found := false
		for _, li := range rec.Lines {
			if li.Product == name {
				qty += li.Quantity
				amount += li.Amount
				found = true
			}
		}
		if !found {
			continue
		}

		dir := domain.Outbound
		if strings.HasPrefix(rec.ID, s.policy.InboundPrefix) {
			dir = domain.Inbound
		}
		move := domain.Movement{
			OrderID:      rec.ID,
			Direction:    dir,
			Counterparty: rec.Counterparty,
			Quantity:     qty,
			Amount:       amount * s.policy.Markup,
		}
		if date := s.gen.DateOf(rec.ID); !date.IsZero() {
			move.Date = date.Format("2006-01-02")
		}
		moves = append(moves, move)
	}
	return moves
}

// GenerateOrderNumber returns a free order number for the given date and
// direction, probed against the current index generation. The result is
// advisory: submission re-validates against the freshest index.
func (s *LedgerService) GenerateOrderNumber(date time.Time, dir domain.Direction) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return "", fmt.Errorf("ledger_service: generate order number: %w", domain.ErrNoSnapshot)
	}
	return s.gen.Generate(date, dir, s.proj.Index)
}

// ValidateOrderNumber checks a user-supplied candidate against the current
// index generation.
func (s *LedgerService) ValidateOrderNumber(candidate string, date time.Time, dir domain.Direction) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return fmt.Errorf("ledger_service: validate order number: %w", domain.ErrNoSnapshot)
	}
	return s.gen.Validate(candidate, date, dir, s.proj.Index)
}

// CheckOrderNumber validates a candidate whose direction and date are read
// from the number itself, against the current index generation.
func (s *LedgerService) CheckOrderNumber(candidate string) error {
	dir := domain.Outbound
	if strings.HasPrefix(candidate, s.policy.InboundPrefix) {
		dir = domain.Inbound
	}
	return s.ValidateOrderNumber(candidate, s.gen.DateOf(candidate), dir)
}

// SubmitRecord validates the draft, re-checks its order number against the
// freshest index, submits it to the remote ledger, and force-refreshes so the
// projections pick up the new record. Duplicate numbers are detected, not
// prevented across concurrent writers; server-side uniqueness would be needed
// to close that race.
func (s *LedgerService) SubmitRecord(ctx context.Context, rec domain.OrderRecord) error {
	if err := s.validateDraft(rec); err != nil {
		return err
	}

	// Freshest index before committing: the generated number may have been
	// taken since the caller obtained it.
	if _, err := s.Refresh(ctx, false); err != nil && !errors.Is(err, domain.ErrStaleData) {
		return fmt.Errorf("ledger_service: submit %s: pre-submit refresh: %w", rec.ID, err)
	}

	if err := s.CheckOrderNumber(rec.ID); err != nil {
		return err
	}

	if err := s.gw.Submit(ctx, rec); err != nil {
		return fmt.Errorf("ledger_service: submit %s: %w", rec.ID, err)
	}

	s.logger.InfoContext(ctx, "record submitted",
		slog.String("order_id", rec.ID),
		slog.String("counterparty", rec.Counterparty),
		slog.Int("lines", len(rec.Lines)),
	)

	// Pick up the new record; a failed post-submit refresh is non-fatal, the
	// submission itself already succeeded.
	if _, err := s.Refresh(ctx, true); err != nil && !errors.Is(err, domain.ErrStaleData) {
		s.logger.WarnContext(ctx, "post-submit refresh failed",
			slog.String("order_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// validateDraft rejects structurally incomplete drafts before they reach the
// network: a draft needs an order number, a counterparty, and at least one
// line with a product, positive quantity, and positive amount.
func (s *LedgerService) validateDraft(rec domain.OrderRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("ledger_service: %w: missing order number", domain.ErrMalformedRecord)
	}
	if rec.Counterparty == "" {
		return fmt.Errorf("ledger_service: %w: %s: missing counterparty", domain.ErrMalformedRecord, rec.ID)
	}
	if len(rec.Lines) == 0 {
		return fmt.Errorf("ledger_service: %w: %s: no line items", domain.ErrMalformedRecord, rec.ID)
	}
	for i, li := range rec.Lines {
		if li.Product == "" {
			return fmt.Errorf("ledger_service: %w: %s line %d: missing product", domain.ErrMalformedRecord, rec.ID, i+1)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("ledger_service: %w: %s line %d: quantity must be positive", domain.ErrMalformedRecord, rec.ID, i+1)
		}
		if li.Amount <= 0 {
			return fmt.Errorf("ledger_service: %w: %s line %d: amount must be positive", domain.ErrMalformedRecord, rec.ID, i+1)
		}
	}
	return nil
}

// Reset ends the session: it drops the auth flag, the projection generation,
// and both snapshot copies, so the next refresh starts cold.
func (s *LedgerService) Reset(ctx context.Context) error {
	if err := s.engine.Clear(ctx); err != nil {
		return fmt.Errorf("ledger_service: reset: %w", err)
	}

	s.mu.Lock()
	s.proj = domain.Projections{}
	s.records = nil
	s.version = ""
	s.ready = false
	s.authed = false
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session reset")
	return nil
}

// Login verifies credentials against the gateway and loads the dataset. The
// engine only tracks the outcome as a flag; enforcing authorization is the
// remote ledger's concern.
func (s *LedgerService) Login(ctx context.Context, name, password string) error {
	if err := s.gw.Login(ctx, name, password); err != nil {
		s.mu.Lock()
		s.authed = false
		s.mu.Unlock()
		return fmt.Errorf("ledger_service: login: %w", err)
	}

	s.mu.Lock()
	s.authed = true
	s.mu.Unlock()

	if _, err := s.Refresh(ctx, false); err != nil && !errors.Is(err, domain.ErrStaleData) {
		return fmt.Errorf("ledger_service: post-login refresh: %w", err)
	}
	return nil
}

// Logout drops the session flag.
func (s *LedgerService) Logout() {
	s.mu.Lock()
	s.authed = false
	s.mu.Unlock()
}

// Authenticated reports whether the last Login succeeded.
func (s *LedgerService) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}
