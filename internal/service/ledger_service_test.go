package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mingfai/stockledger/internal/aggregate"
	"github.com/mingfai/stockledger/internal/domain"
	"github.com/mingfai/stockledger/internal/ordernum"
	"github.com/mingfai/stockledger/internal/syncer"
)

// fakeGateway serves a mutable dataset and records submissions. Submitting
// bumps the version, mirroring how the remote script behaves.
type fakeGateway struct {
	version    domain.VersionToken
	records    []domain.OrderRecord
	versionErr error
	loginOK    bool
	submitted  []domain.OrderRecord
}

func (f *fakeGateway) Login(_ context.Context, name, _ string) error {
	if !f.loginOK {
		return domain.ErrUnauthorized
	}
	return nil
}

func (f *fakeGateway) Version(context.Context) (domain.VersionToken, error) {
	return f.version, f.versionErr
}

func (f *fakeGateway) AllRecords(context.Context) ([]domain.OrderRecord, error) {
	if f.versionErr != nil {
		return nil, f.versionErr
	}
	return f.records, nil
}

func (f *fakeGateway) Submit(_ context.Context, rec domain.OrderRecord) error {
	f.submitted = append(f.submitted, rec)
	f.records = append(f.records, rec)
	f.version += "'"
	return nil
}

// memStore is an in-memory SnapshotStore.
type memStore struct {
	env *domain.CacheEnvelope
}

func (m *memStore) Load(context.Context) (domain.CacheEnvelope, error) {
	if m.env == nil {
		return domain.CacheEnvelope{}, domain.ErrNoSnapshot
	}
	return *m.env, nil
}

func (m *memStore) Save(_ context.Context, env domain.CacheEnvelope) error {
	m.env = &env
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.env = nil
	return nil
}

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seedRecords() []domain.OrderRecord {
	return []domain.OrderRecord{
		{
			ID:           "RKD20240101001",
			Counterparty: "Acme Supply",
			Lines: []domain.LineItem{
				{Product: "Widget", Unit: "box", Quantity: 2, Amount: 10},
			},
		},
		{
			ID:           "CKD20240102001",
			Counterparty: "North Retail",
			Lines: []domain.LineItem{
				{Product: "Widget", Unit: "box", Quantity: 1, Amount: 8},
			},
		},
	}
}

func newTestService(gw domain.Gateway) *LedgerService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(
		syncer.New(gw, &memStore{}, logger),
		aggregate.NewBuilder(2, "RKD"),
		ordernum.New("RKD", "CKD", 3),
		gw,
		Policy{Markup: 2, InboundPrefix: "RKD"},
		logger,
	)
}

func TestRefresh_BuildsAllProjectionsFromOneSnapshot(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	ds, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, ds.Changed)

	catalog := svc.Catalog()
	parties := svc.Parties()
	index := svc.OrderIndex()

	require.Contains(t, catalog, "Widget")
	assert.Contains(t, parties.Suppliers, "Acme Supply")
	assert.Contains(t, parties.Customers, "North Retail")
	assert.Len(t, index, 2)
}

func TestRefresh_ProjectionsSwapAtomically(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	// New generation drops the outbound record entirely.
	gw.version = "v2"
	gw.records = seedRecords()[:1]
	_, err = svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	// Every projection reflects the v2 snapshot: no mixed generations.
	assert.Len(t, svc.OrderIndex(), 1)
	assert.Empty(t, svc.Parties().Customers)
	assert.Contains(t, svc.Catalog(), "Widget")
}

func TestRefresh_StaleFallbackStillServesProjections(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	gw.versionErr = errors.New("connection refused")
	ds, err := svc.Refresh(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStaleData)
	assert.True(t, ds.Stale)
	assert.Len(t, svc.OrderIndex(), 2)
}

func TestGenerateOrderNumber(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	got, err := svc.GenerateOrderNumber(jan1, domain.Inbound)
	require.NoError(t, err)
	assert.Equal(t, "RKD20240101002", got)
}

func TestGenerateOrderNumber_BeforeFirstRefresh(t *testing.T) {
	svc := newTestService(&fakeGateway{})

	_, err := svc.GenerateOrderNumber(jan1, domain.Inbound)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoSnapshot)
}

func TestSubmitRecord(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	rec := domain.OrderRecord{
		ID:           "RKD20240101002",
		Counterparty: "Acme Supply",
		Lines: []domain.LineItem{
			{Product: "Widget", Unit: "box", Quantity: 3, Amount: 15},
		},
	}
	require.NoError(t, svc.SubmitRecord(context.Background(), rec))
	require.Len(t, gw.submitted, 1)

	// The forced post-submit refresh indexed the new record.
	assert.Contains(t, svc.OrderIndex(), "RKD20240101002")
}

func TestSubmitRecord_DetectsTakenNumber(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	rec := domain.OrderRecord{
		ID:           "RKD20240101001", // already in the dataset
		Counterparty: "Acme Supply",
		Lines: []domain.LineItem{
			{Product: "Widget", Unit: "box", Quantity: 1, Amount: 5},
		},
	}
	err = svc.SubmitRecord(context.Background(), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderNumberTaken)
	assert.Empty(t, gw.submitted)
}

func TestSubmitRecord_RejectsIncompleteDraft(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	tests := []struct {
		name string
		rec  domain.OrderRecord
	}{
		{"missing counterparty", domain.OrderRecord{
			ID:    "RKD20240101002",
			Lines: []domain.LineItem{{Product: "Widget", Quantity: 1, Amount: 5}},
		}},
		{"no lines", domain.OrderRecord{
			ID:           "RKD20240101002",
			Counterparty: "Acme Supply",
		}},
		{"zero quantity", domain.OrderRecord{
			ID:           "RKD20240101002",
			Counterparty: "Acme Supply",
			Lines:        []domain.LineItem{{Product: "Widget", Quantity: 0, Amount: 5}},
		}},
		{"zero amount", domain.OrderRecord{
			ID:           "RKD20240101002",
			Counterparty: "Acme Supply",
			Lines:        []domain.LineItem{{Product: "Widget", Quantity: 1, Amount: 0}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SubmitRecord(context.Background(), tt.rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedRecord)
		})
	}
	assert.Empty(t, gw.submitted)
}

func TestSearchProducts(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"Widget"}, svc.SearchProducts("wid"))
	assert.Empty(t, svc.SearchProducts("sprocket"))
	assert.Empty(t, svc.SearchProducts("  "))
}

func TestProductHistory(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	moves := svc.ProductHistory("Widget")
	require.Len(t, moves, 2)

	assert.Equal(t, "RKD20240101001", moves[0].OrderID)
	assert.Equal(t, domain.Inbound, moves[0].Direction)
	assert.Equal(t, "2024-01-01", moves[0].Date)
	assert.Equal(t, "Acme Supply", moves[0].Counterparty)
	assert.InDelta(t, 2, moves[0].Quantity, 1e-9)
	assert.InDelta(t, 20, moves[0].Amount, 1e-9) // 10 x markup

	assert.Equal(t, domain.Outbound, moves[1].Direction)
	assert.Equal(t, "North Retail", moves[1].Counterparty)
}

func TestLogin(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords(), loginOK: true}
	svc := newTestService(gw)

	require.NoError(t, svc.Login(context.Background(), "user", "pw"))
	assert.True(t, svc.Authenticated())
	assert.Len(t, svc.OrderIndex(), 2) // post-login refresh loaded the dataset

	svc.Logout()
	assert.False(t, svc.Authenticated())
}

func TestLogin_Rejected(t *testing.T) {
	gw := &fakeGateway{loginOK: false}
	svc := newTestService(gw)

	err := svc.Login(context.Background(), "user", "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, svc.Authenticated())
}

func TestCheckOrderNumber(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords()}
	svc := newTestService(gw)

	_, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)

	// Direction and date are read from the number itself.
	assert.NoError(t, svc.CheckOrderNumber("RKD20240101002"))
	assert.NoError(t, svc.CheckOrderNumber("CKD20240102002"))
	assert.ErrorIs(t, svc.CheckOrderNumber("RKD20240101001"), domain.ErrOrderNumberTaken)
	assert.ErrorIs(t, svc.CheckOrderNumber("XKD20240101001"), domain.ErrInvalidOrderNumber)
}

func TestReset_DropsSessionAndSnapshots(t *testing.T) {
	gw := &fakeGateway{version: "v1", records: seedRecords(), loginOK: true}
	store := &memStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(
		syncer.New(gw, store, logger),
		aggregate.NewBuilder(2, "RKD"),
		ordernum.New("RKD", "CKD", 3),
		gw,
		Policy{Markup: 2, InboundPrefix: "RKD"},
		logger,
	)

	require.NoError(t, svc.Login(context.Background(), "clerk", "pw"))
	require.NotEmpty(t, svc.Catalog())

	require.NoError(t, svc.Reset(context.Background()))

	assert.False(t, svc.Authenticated())
	assert.Empty(t, svc.Catalog())
	assert.Empty(t, svc.OrderIndex())
	assert.Nil(t, store.env)

	// Number generation needs a snapshot again.
	_, err := svc.GenerateOrderNumber(jan1, domain.Inbound)
	assert.ErrorIs(t, err, domain.ErrNoSnapshot)

	// A fresh refresh rebuilds from the gateway.
	ds, err := svc.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, ds.Changed)
	assert.NotEmpty(t, svc.Catalog())
}
