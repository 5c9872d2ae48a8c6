package model

import "math"

// DefaultRating is the starting rating on every axis.
const DefaultRating = 1000

// Ratings holds one integer rating per category plus the derived overall.
type Ratings struct {
	Overall     int `json:"overall" yaml:"overall"`
	Agentic     int `json:"agentic" yaml:"agentic"`
	Planning    int `json:"planning" yaml:"planning"`
	Debugging   int `json:"debugging" yaml:"debugging"`
	Refactoring int `json:"refactoring" yaml:"refactoring"`
	Explaining  int `json:"explaining" yaml:"explaining"`
}

// DefaultRatings returns ratings with every axis at DefaultRating.
func DefaultRatings() Ratings {
	return Ratings{
		Overall:     DefaultRating,
		Agentic:     DefaultRating,
		Planning:    DefaultRating,
		Debugging:   DefaultRating,
		Refactoring: DefaultRating,
		Explaining:  DefaultRating,
	}
}

// Get returns the rating on axis c. Unknown categories read as zero.
func (r Ratings) Get(c Category) int {
	switch c {
	case Overall:
		return r.Overall
	case Agentic:
		return r.Agentic
	case Planning:
		return r.Planning
	case Debugging:
		return r.Debugging
	case Refactoring:
		return r.Refactoring
	case Explaining:
		return r.Explaining
	default:
		return 0
	}
}

// Set writes v on axis c. Writes to unknown categories are ignored.
func (r *Ratings) Set(c Category, v int) {
	switch c {
	case Overall:
		r.Overall = v
	case Agentic:
		r.Agentic = v
	case Planning:
		r.Planning = v
	case Debugging:
		r.Debugging = v
	case Refactoring:
		r.Refactoring = v
	case Explaining:
		r.Explaining = v
	}
}

// Recompute derives Overall as the rounded mean of the votable categories.
func (r *Ratings) Recompute() {
	sum := 0
	for _, c := range Votable {
		sum += r.Get(c)
	}
	r.Overall = int(math.Round(float64(sum) / float64(len(Votable))))
}

// Candidate is a rated entity in the leaderboard.
type Candidate struct {
	ID            string  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	Company       string  `json:"company" yaml:"company"`
	CostCredits   float64 `json:"costCredits" yaml:"costCredits"`
	ContextWindow int     `json:"contextWindow" yaml:"contextWindow"`
	Speed         float64 `json:"speed" yaml:"speed"`
	LogoURL       string  `json:"logoUrl,omitempty" yaml:"logoUrl"`
	Ratings       Ratings `json:"ratings" yaml:"ratings"`
	VoteCount     int     `json:"votes" yaml:"votes"`
}

// SameMetadata reports whether the descriptive fields of c and o match.
// Ratings and vote counts are not compared.
func (c Candidate) SameMetadata(o Candidate) bool {
	return c.Name == o.Name &&
		c.Company == o.Company &&
		c.CostCredits == o.CostCredits &&
		c.ContextWindow == o.ContextWindow &&
		c.Speed == o.Speed &&
		c.LogoURL == o.LogoURL
}
