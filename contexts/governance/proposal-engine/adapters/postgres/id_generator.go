package postgresadapter

import (
	"context"

	"github.com/google/uuid"
)

// UUIDGenerator issues random UUIDs for proposals, options, votes and events.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
