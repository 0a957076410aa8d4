package cohere

import (
	"context"
	"fmt"
	"net/http"
	"time"

	co "github.com/cohere-ai/cohere-go/v2"
	coclient "github.com/cohere-ai/cohere-go/v2/client"

	"github.com/alan-mat/docchat/internal/api"
)

const DefaultRerankModel = "rerank-v3.5"

type CohereProvider struct {
	client    *coclient.Client
	threshold float64
}

func New(apiKey string, threshold float64) *CohereProvider {
	c := coclient.NewClient(
		coclient.WithToken(apiKey),
		coclient.WithHTTPClient(
			&http.Client{
				Timeout: 60 * time.Second,
			},
		),
	)
	return &CohereProvider{
		client:    c,
		threshold: threshold,
	}
}

// Rerank scores the request documents against the query and keeps those
// at or above the threshold, best first.
func (p CohereProvider) Rerank(ctx context.Context, req api.RerankRequest) (*api.RerankResponse, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("rerank request failed: missing parameter 'query' in request")
	}

	if len(req.Documents) == 0 {
		return nil, fmt.Errorf("rerank request failed: missing parameter 'documents' in request")
	}

	texts := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		texts[i] = d.Content
	}

	coReq := &co.V2RerankRequest{
		Query:     req.Query,
		Documents: texts,
		Model:     DefaultRerankModel,
	}

	if req.ModelName != "" {
		coReq.Model = req.ModelName
	}

	if req.Limit != 0 {
		coReq.TopN = &req.Limit
	}

	resp, err := p.client.V2.Rerank(ctx, coReq)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}

	threshold := p.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	scores := make([]indexScore, 0, len(resp.Results))
	for _, r := range resp.Results {
		scores = append(scores, indexScore{index: r.Index, score: r.RelevanceScore})
	}

	return &api.RerankResponse{
		Query:     req.Query,
		Documents: filterResults(req.Documents, scores, threshold),
		ModelName: coReq.Model,
	}, nil
}

type indexScore struct {
	index int
	score float64
}

func filterResults(docs []*api.ScoredDocument, scores []indexScore, threshold float64) []*api.ScoredDocument {
	out := make([]*api.ScoredDocument, 0, len(scores))
	for _, s := range scores {
		if s.index < 0 || s.index >= len(docs) || s.score < threshold {
			continue
		}
		d := docs[s.index].Copy()
		d.Score = s.score
		out = append(out, d)
	}
	return out
}
