// Package identity turns loose user references into canonical FIDs and
// fetches best-effort profile data from the upstream identity services.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/Clark-Hu/universal-rate/internal/domain"
)

var (
	// ErrNotFound is returned when a provider has no record for the lookup.
	ErrNotFound = errors.New("identity: not found")
	// ErrUnsupported is returned by providers that cannot serve an operation.
	ErrUnsupported = errors.New("identity: operation not supported by provider")
	// ErrUnresolved is returned when no input of a Target could be resolved.
	ErrUnresolved = errors.New("identity: target could not be resolved")
	// ErrCastURLDisabled is returned when only a cast URL was given and cast URL resolution is off.
	ErrCastURLDisabled = errors.New("identity: cast URL resolution is disabled")
)

// Provider is one upstream identity service.
type Provider interface {
	Name() string
	UsernameToID(ctx context.Context, handle string) (int64, error)
	CastURLToAuthorID(ctx context.Context, castURL string) (int64, error)
	ProfileByID(ctx context.Context, fid int64) (domain.Profile, error)
}

// UpstreamError reports a non-2xx response from a provider.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Provider, e.Status, e.Body)
}
