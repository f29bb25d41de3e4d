package embedding

// EmbeddingResponseEmbedding carries the raw vector values.
type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

// EmbeddingResponse is the provider-agnostic embedding result.
type EmbeddingResponse struct {
	Embedding EmbeddingResponseEmbedding `json:"embedding"`
}
