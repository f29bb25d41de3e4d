package bootstrap

import (
	"context"

	"ai-supportdesk-be/internal/repository/unitofwork"
	"ai-supportdesk-be/pkg/retrieval"
	"ai-supportdesk-be/pkg/retrieval/semantic"

	"github.com/google/uuid"
)

// knowledgeSource feeds the retrieval indices and hydrates ranked results
// from the persisted corpus. It backs all three retrieval-side interfaces.
type knowledgeSource struct {
	uowFactory unitofwork.RepositoryFactory
}

func newKnowledgeSource(uowFactory unitofwork.RepositoryFactory) *knowledgeSource {
	return &knowledgeSource{uowFactory: uowFactory}
}

// LoadPassages supplies the lexical index build.
func (ks *knowledgeSource) LoadPassages(ctx context.Context) ([]retrieval.Passage, error) {
	uow := ks.uowFactory.NewUnitOfWork(ctx)

	entities, err := uow.KnowledgePassageRepository().FindAll(ctx)
	if err != nil {
		return nil, err
	}

	passages := make([]retrieval.Passage, len(entities))
	for i, e := range entities {
		passages[i] = retrieval.Passage{
			ID:        e.Id.String(),
			Text:      e.Content,
			SourceURL: e.SourceURL,
			Tags:      e.Tags,
		}
	}
	return passages, nil
}

// LoadVectors supplies the semantic index build.
func (ks *knowledgeSource) LoadVectors(ctx context.Context) ([]semantic.Entry, error) {
	uow := ks.uowFactory.NewUnitOfWork(ctx)

	embeddings, err := uow.PassageEmbeddingRepository().FindAll(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]semantic.Entry, len(embeddings))
	for i, e := range embeddings {
		entries[i] = semantic.Entry{
			PassageID: e.PassageId.String(),
			Vector:    e.EmbeddingValue,
		}
	}
	return entries, nil
}

// GetPassages hydrates ranked ids back into full text for the executor.
func (ks *knowledgeSource) GetPassages(ctx context.Context, ids []string) ([]retrieval.Passage, error) {
	uuids := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		uuids = append(uuids, parsed)
	}

	uow := ks.uowFactory.NewUnitOfWork(ctx)
	entities, err := uow.KnowledgePassageRepository().FindByIds(ctx, uuids)
	if err != nil {
		return nil, err
	}

	passages := make([]retrieval.Passage, len(entities))
	for i, e := range entities {
		passages[i] = retrieval.Passage{
			ID:        e.Id.String(),
			Text:      e.Content,
			SourceURL: e.SourceURL,
			Tags:      e.Tags,
		}
	}
	return passages, nil
}
