package domain

import "context"

// Gateway is the remote ledger system of record. The engine treats it as an
// opaque request/response channel: any transport that can report a version
// token, return the full record set, and accept a new record will do.
type Gateway interface {
	// Login verifies credentials against the remote ledger.
	Login(ctx context.Context, name, password string) error

	// Version returns the current revision token of the remote dataset.
	Version(ctx context.Context) (VersionToken, error)

	// AllRecords fetches the complete record set.
	AllRecords(ctx context.Context) ([]OrderRecord, error)

	// Submit appends a new record to the remote ledger.
	Submit(ctx context.Context, record OrderRecord) error
}
