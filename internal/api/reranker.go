package api

// RerankRequest asks a reranker to order retrieved chunks by relevance
// to Query.
type RerankRequest struct {
	Query     string
	Documents []*ScoredDocument

	// Limit keeps at most this many documents, 0 keeps all.
	Limit     int
	ModelName string
	// Threshold overrides the reranker's minimum relevance score.
	Threshold *float64
}

type RerankResponse struct {
	Query string
	// Documents are ordered best first and carry the reranker's scores.
	Documents []*ScoredDocument
	ModelName string
}
