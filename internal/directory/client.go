package directory

import (
	"context"

	"lookup_engine/internal/model"
)

// Client is the remote directory the engine checks identifiers against.
// A connection-level error belongs in the returned error; protocol-level
// answers (including bans and throttling) belong in the LookupOutcome.
type Client interface {
	Name() string
	Lookup(ctx context.Context, account model.Account, identifier string) (model.LookupOutcome, error)
}
