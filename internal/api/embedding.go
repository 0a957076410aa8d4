package api

// EmbedDocumentRequest groups the chunks of one source document. IDs and
// Metadata, when set, are index aligned with Chunks.
type EmbedDocumentRequest struct {
	Title    string
	Chunks   []string
	IDs      []string
	Metadata []map[string]any
}

type DocumentEmbedding struct {
	Title    string
	Chunks   []string
	IDs      []string
	Metadata []map[string]any
	Values   [][]float32
}
