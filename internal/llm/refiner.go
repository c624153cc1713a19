package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/dgallion1/docrag/internal/ragerr"
)

// Refiner rewrites a user query into a form better suited to retrieval.
type Refiner struct {
	endpoint
}

func NewRefiner(cfg Config) *Refiner {
	return &Refiner{endpoint: newEndpoint(cfg)}
}

type refineRequest struct {
	UserQuery string `json:"user_query"`
}

type refineResponse struct {
	RefinedQuery *string `json:"refined_query"`
}

// Refine returns the refined query. A missing or blank refined_query is a
// refinement error; the raw query is never substituted here.
func (r *Refiner) Refine(ctx context.Context, query string) (string, error) {
	var resp refineResponse
	if err := r.post(ctx, ragerr.KindRefinement, "refine query", refineRequest{UserQuery: query}, &resp); err != nil {
		return "", withSubject(err, query)
	}
	if resp.RefinedQuery == nil {
		return "", ragerr.Refinement("refine query", subject(query), errors.New("response has no refined_query"))
	}
	refined := strings.TrimSpace(*resp.RefinedQuery)
	if refined == "" {
		return "", ragerr.Refinement("refine query", subject(query), errors.New("refined_query is empty"))
	}
	return refined, nil
}

// Close releases resources.
func (r *Refiner) Close() {
	r.close()
}

func withSubject(err error, query string) error {
	var e *ragerr.Error
	if errors.As(err, &e) && e.Subject == "" {
		e.Subject = subject(query)
	}
	return err
}

func subject(query string) string {
	return ragerr.Truncate(query, 80)
}
