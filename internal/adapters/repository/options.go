package repository

import "github.com/okian/arena/internal/domain/model"

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithCandidates seeds the catalog.
func WithCandidates(cs ...model.Candidate) Option {
	return func(c *Catalog) {
		for _, cand := range cs {
			c.upsertLocked(cand)
		}
	}
}
