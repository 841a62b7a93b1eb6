package exchange

import (
	"fmt"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// Registry maps platform ids to registered swap venues. A platform id is
// supported iff a venue is registered under it.
type Registry struct {
	venues map[domain.PlatformID]Venue
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{venues: make(map[domain.PlatformID]Venue)}
}

// Register adds a venue under its id. Duplicate ids are rejected.
func (r *Registry) Register(v Venue) error {
	if _, ok := r.venues[v.ID()]; ok {
		return fmt.Errorf("exchange: platform id %d already registered", v.ID())
	}
	r.venues[v.ID()] = v
	return nil
}

// Venue resolves a platform id, returning ErrInvalidExchangeID for ids with
// no registered venue.
func (r *Registry) Venue(id domain.PlatformID) (Venue, error) {
	v, ok := r.venues[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidExchangeID, id)
	}
	return v, nil
}
