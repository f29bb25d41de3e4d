package main

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/mapper"
	"ai-supportdesk-be/pkg/database"
	"ai-supportdesk-be/pkg/embedding"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// seedPassage mirrors the entries of the seed corpus file.
type seedPassage struct {
	Content   string   `json:"content"`
	SourceURL string   `json:"source_url"`
	Tags      []string `json:"tags"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		color.Red("Error: DB_CONNECTION_STRING is not set")
		os.Exit(1)
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		color.Red("Error: Failed to connect to database: %v", err)
		os.Exit(1)
	}

	corpusPath := os.Getenv("SEED_CORPUS_PATH")
	if corpusPath == "" {
		corpusPath = "seed/knowledge_corpus.json"
	}

	raw, err := os.ReadFile(corpusPath)
	if err != nil {
		color.Red("Error: Failed to read seed corpus %s: %v", corpusPath, err)
		os.Exit(1)
	}

	var passages []seedPassage
	if err := json.Unmarshal(raw, &passages); err != nil {
		color.Red("Error: Failed to parse seed corpus: %v", err)
		os.Exit(1)
	}

	// Embeddings are optional at seed time; without a running provider the
	// lexical index still works and vectors can be backfilled later.
	var embedder embedding.EmbeddingProvider
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		embModel := os.Getenv("OLLAMA_EMBEDDING_MODEL")
		if embModel == "" {
			embModel = "nomic-embed-text"
		}
		embedder = embedding.NewOllamaProvider(baseURL, embModel)
	}

	km := mapper.NewKnowledgeMapper()
	created, embedded := 0, 0

	color.Cyan("Seeding %d knowledge passages...", len(passages))
	for _, p := range passages {
		passage := &entity.KnowledgePassage{
			Id:        uuid.New(),
			Content:   p.Content,
			SourceURL: p.SourceURL,
			Tags:      p.Tags,
			CreatedAt: time.Now(),
		}

		if err := db.Create(km.PassageToModel(passage)).Error; err != nil {
			color.Yellow("Warn: Failed to create passage: %v", err)
			continue
		}
		created++

		if embedder == nil {
			continue
		}
		res, err := embedder.Generate(p.Content, "RETRIEVAL_DOCUMENT")
		if err != nil {
			color.Yellow("Warn: Failed to embed passage: %v", err)
			continue
		}
		emb := &entity.PassageEmbedding{
			Id:             uuid.New(),
			PassageId:      passage.Id,
			EmbeddingValue: res.Embedding.Values,
			CreatedAt:      time.Now(),
		}
		if err := db.Create(km.EmbeddingToModel(emb)).Error; err != nil {
			color.Yellow("Warn: Failed to store embedding: %v", err)
			continue
		}
		embedded++
	}

	color.Green("Seeding completed: %d passages created, %d embedded.", created, embedded)
}
