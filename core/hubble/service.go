package hubble

import (
	"context"

	"github.com/cosmicds/cds-api/core"
)

// Service implements the Hubble's-law story: merge groups, cohort reads, submissions and exports.
// It keeps no state between calls; everything is derived from the repository.
type Service struct {
	repo   Repository
	roster Roster
	logger core.Logger
	cache  core.Cache
}

// NewService returns a Service. cache may be nil.
func NewService(repo Repository, rosterSvc Roster, logger core.Logger, cache core.Cache) *Service {
	if cache == nil {
		cache = noCache{}
	}
	return &Service{
		repo:   repo,
		roster: rosterSvc,
		logger: logger,
		cache:  cache,
	}
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (noCache) Set(context.Context, string, []byte) error  { return nil }
