package llm

import (
	"context"

	"github.com/dgallion1/docrag/internal/ragerr"
)

// NoAnswerFallback is returned when the generator answers without an answer field.
const NoAnswerFallback = "No answer returned by the answer generator."

// Generator produces an answer grounded in the supplied context.
type Generator struct {
	endpoint
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{endpoint: newEndpoint(cfg)}
}

type generateRequest struct {
	RAGContext string `json:"rag_context"`
	UserQuery  string `json:"user_query"`
}

type generateResponse struct {
	Answer *string `json:"answer"`
}

// Generate returns the generator's answer verbatim.
func (g *Generator) Generate(ctx context.Context, ragContext, query string) (string, error) {
	var resp generateResponse
	req := generateRequest{RAGContext: ragContext, UserQuery: query}
	if err := g.post(ctx, ragerr.KindGeneration, "generate answer", req, &resp); err != nil {
		return "", withSubject(err, query)
	}
	if resp.Answer == nil {
		return NoAnswerFallback, nil
	}
	return *resp.Answer, nil
}

// Close releases resources.
func (g *Generator) Close() {
	g.close()
}
