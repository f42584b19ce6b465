// Package metadata is a small key/blob store on the local database. The
// credential vault, device identity, and the vendor machine-id all persist
// through it.
package metadata

import "context"

// Repository stores opaque values by key. Get returns sql.ErrNoRows-wrapped
// common.ErrorNotFound semantics via the concrete implementation.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
