// Package seed loads the candidate catalog bundled with the binary and
// reconciles it with the remote store.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/okian/arena/internal/domain/model"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var bundled []byte

// ErrInvalidCatalog is returned for catalog files that fail to parse or validate.
var ErrInvalidCatalog = errors.New("invalid candidate catalog")

type file struct {
	Candidates []entry `yaml:"candidates" validate:"required,min=1,unique=ID,dive"`
}

type entry struct {
	ID            string         `yaml:"id" validate:"required"`
	Name          string         `yaml:"name" validate:"required"`
	Company       string         `yaml:"company"`
	CostCredits   float64        `yaml:"costCredits" validate:"gte=0"`
	ContextWindow int            `yaml:"contextWindow" validate:"gte=0"`
	Speed         float64        `yaml:"speed" validate:"gte=0"`
	LogoURL       string         `yaml:"logoUrl"`
	Ratings       *model.Ratings `yaml:"ratings"`
	Votes         int            `yaml:"votes" validate:"gte=0"`
}

// Bundled returns the catalog compiled into the binary.
func Bundled() ([]model.Candidate, error) {
	return Parse(bundled)
}

// Load reads the catalog at path, or the bundled one when path is empty.
func Load(path string) ([]model.Candidate, error) {
	if path == "" {
		return Bundled()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog. Candidates without ratings get
// the default rating on every axis; overall is always derived.
func Parse(data []byte) ([]model.Candidate, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	out := make([]model.Candidate, 0, len(f.Candidates))
	for _, e := range f.Candidates {
		r := model.DefaultRatings()
		if e.Ratings != nil {
			r = *e.Ratings
		}
		r.Recompute()
		out = append(out, model.Candidate{
			ID:            e.ID,
			Name:          e.Name,
			Company:       e.Company,
			CostCredits:   e.CostCredits,
			ContextWindow: e.ContextWindow,
			Speed:         e.Speed,
			LogoURL:       e.LogoURL,
			Ratings:       r,
			VoteCount:     e.Votes,
		})
	}
	return out, nil
}

// Store is the subset of the remote store seeding needs.
type Store interface {
	FetchCandidates(ctx context.Context) ([]model.Candidate, error)
	InsertCandidates(ctx context.Context, cs []model.Candidate) error
	UpdateCandidateMetadata(ctx context.Context, c model.Candidate) error
}

// Plan compares the remote catalog with the bundled one. Bundled candidates
// missing remotely are inserted; existing ones whose metadata differs are
// updated. Remote-only candidates are left alone.
func Plan(remote, bundled []model.Candidate) (inserts, updates []model.Candidate) {
	existing := make(map[string]model.Candidate, len(remote))
	for _, c := range remote {
		existing[c.ID] = c
	}
	for _, c := range bundled {
		cur, ok := existing[c.ID]
		switch {
		case !ok:
			inserts = append(inserts, c)
		case !cur.SameMetadata(c):
			updates = append(updates, c)
		}
	}
	return inserts, updates
}

// Result summarises a Sync.
type Result struct {
	Inserted int
	Updated  int
}

// Sync pushes the bundled catalog to s according to Plan.
func Sync(ctx context.Context, s Store, bundled []model.Candidate) (Result, error) {
	remote, err := s.FetchCandidates(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch existing candidates: %w", err)
	}
	inserts, updates := Plan(remote, bundled)

	var res Result
	if len(inserts) > 0 {
		if err := s.InsertCandidates(ctx, inserts); err != nil {
			return res, fmt.Errorf("seed candidates: %w", err)
		}
		res.Inserted = len(inserts)
	}
	for _, c := range updates {
		if err := s.UpdateCandidateMetadata(ctx, c); err != nil {
			return res, fmt.Errorf("update metadata of %s: %w", c.ID, err)
		}
		res.Updated++
	}
	return res, nil
}
