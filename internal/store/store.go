// Package store persists the OAuth token record behind a pluggable
// interface. Backends cover process memory, an owner-only JSON file,
// PostgreSQL, and S3-compatible object storage.
package store

import (
	"context"

	"github.com/restream-tools/restreamctl/internal/auth"
)

// TokenStore owns the persisted token record for one session. Load reports
// an absent session as (nil, nil); backends degrade corrupt state to absent
// rather than failing, so callers fall back to re-authentication instead of
// crashing.
type TokenStore interface {
	Save(ctx context.Context, record *auth.TokenRecord) error
	Load(ctx context.Context) (*auth.TokenRecord, error)
	Clear(ctx context.Context) error
}
