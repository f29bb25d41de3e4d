package embedding

// EmbeddingProvider turns text into a vector. taskType distinguishes query
// and document embeddings for providers that support it.
type EmbeddingProvider interface {
	Generate(text string, taskType string) (*EmbeddingResponse, error)
}
