package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-supportdesk-be/internal/dto"
	"ai-supportdesk-be/internal/entity"
	"ai-supportdesk-be/internal/repository/specification"
	"ai-supportdesk-be/internal/repository/unitofwork"
	"ai-supportdesk-be/pkg/embedding"

	"github.com/google/uuid"
)

type IKnowledgeService interface {
	Create(ctx context.Context, req *dto.CreateKnowledgeItemRequest) (*dto.KnowledgeItemResponse, error)
	Update(ctx context.Context, id uuid.UUID, req *dto.UpdateKnowledgeItemRequest) (*dto.KnowledgeItemResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetAll(ctx context.Context) ([]*dto.KnowledgeItemResponse, error)
}

// knowledgeService manages the retrievable corpus. Every mutation embeds the
// passage and announces the change so the search indices rebuild.
type knowledgeService struct {
	uowFactory        unitofwork.RepositoryFactory
	publisherService  IPublisherService
	embeddingProvider embedding.EmbeddingProvider
}

func NewKnowledgeService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	embeddingProvider embedding.EmbeddingProvider,
) IKnowledgeService {
	return &knowledgeService{
		uowFactory:        uowFactory,
		publisherService:  publisherService,
		embeddingProvider: embeddingProvider,
	}
}

func (s *knowledgeService) Create(ctx context.Context, req *dto.CreateKnowledgeItemRequest) (*dto.KnowledgeItemResponse, error) {
	passage := &entity.KnowledgePassage{
		Id:        uuid.New(),
		Content:   req.Content,
		SourceURL: req.SourceURL,
		Tags:      req.Tags,
		CreatedAt: time.Now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.KnowledgePassageRepository().Create(ctx, passage); err != nil {
		return nil, err
	}
	if err := s.embedPassage(ctx, uow, passage); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.announce(ctx, passage.Id, "created")
	return passageToResponse(passage), nil
}

func (s *knowledgeService) Update(ctx context.Context, id uuid.UUID, req *dto.UpdateKnowledgeItemRequest) (*dto.KnowledgeItemResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	passage, err := uow.KnowledgePassageRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if passage == nil {
		return nil, errors.New("knowledge passage not found")
	}

	passage.Content = req.Content
	passage.SourceURL = req.SourceURL
	passage.Tags = req.Tags

	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.KnowledgePassageRepository().Update(ctx, passage); err != nil {
		return nil, err
	}
	if err := s.embedPassage(ctx, uow, passage); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.announce(ctx, passage.Id, "updated")
	return passageToResponse(passage), nil
}

func (s *knowledgeService) Delete(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	passage, err := uow.KnowledgePassageRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return err
	}
	if passage == nil {
		return errors.New("knowledge passage not found")
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.PassageEmbeddingRepository().DeleteByPassageId(ctx, id); err != nil {
		return err
	}
	if err := uow.KnowledgePassageRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.announce(ctx, id, "deleted")
	return nil
}

func (s *knowledgeService) GetAll(ctx context.Context) ([]*dto.KnowledgeItemResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	passages, err := uow.KnowledgePassageRepository().FindAll(ctx,
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.KnowledgeItemResponse, len(passages))
	for i, p := range passages {
		res[i] = passageToResponse(p)
	}
	return res, nil
}

func (s *knowledgeService) embedPassage(ctx context.Context, uow unitofwork.UnitOfWork, passage *entity.KnowledgePassage) error {
	embeddingRes, err := s.embeddingProvider.Generate(passage.Content, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return err
	}

	emb := &entity.PassageEmbedding{
		Id:             uuid.New(),
		PassageId:      passage.Id,
		EmbeddingValue: embeddingRes.Embedding.Values,
		CreatedAt:      time.Now(),
	}
	return uow.PassageEmbeddingRepository().Upsert(ctx, emb)
}

func (s *knowledgeService) announce(ctx context.Context, passageId uuid.UUID, action string) {
	payload, err := json.Marshal(dto.PublishKnowledgeUpdatedMessage{PassageId: passageId, Action: action})
	if err != nil {
		return
	}
	if err := s.publisherService.Publish(ctx, payload); err != nil {
		// Index staleness only; the next rebuild catches up.
		return
	}
}

func passageToResponse(p *entity.KnowledgePassage) *dto.KnowledgeItemResponse {
	return &dto.KnowledgeItemResponse{
		Id:        p.Id,
		Content:   p.Content,
		SourceURL: p.SourceURL,
		Tags:      p.Tags,
		CreatedAt: p.CreatedAt,
	}
}
