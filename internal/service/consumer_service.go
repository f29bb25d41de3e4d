package service

import (
	"context"
	"encoding/json"
	"log"

	"ai-supportdesk-be/internal/dto"
	"ai-supportdesk-be/internal/websocket"
	"ai-supportdesk-be/pkg/retrieval/lexical"
	"ai-supportdesk-be/pkg/retrieval/semantic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService listens for knowledge mutations and drops the in-memory
// retrieval indices. The next search lazily rebuilds against the updated
// corpus; readers on the old snapshot are unaffected.
type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	lexicalRetriever  *lexical.Retriever
	semanticRetriever *semantic.Retriever
	hub               *websocket.Hub
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	lexicalRetriever *lexical.Retriever,
	semanticRetriever *semantic.Retriever,
	hub *websocket.Hub,
) IConsumerService {
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		lexicalRetriever:  lexicalRetriever,
		semanticRetriever: semanticRetriever,
		hub:               hub,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	var payload dto.PublishKnowledgeUpdatedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal knowledge update: %v", err)
		msg.Ack() // invalid payload, retrying cannot help
		return
	}

	log.Printf("[INFO] Knowledge passage %s %s, invalidating indices", payload.PassageId, payload.Action)
	cs.lexicalRetriever.Invalidate()
	cs.semanticRetriever.Invalidate()

	if cs.hub != nil {
		cs.hub.Broadcast(websocket.Event{
			Type: "knowledge_updated",
			Data: map[string]interface{}{
				"passage_id": payload.PassageId,
				"action":     payload.Action,
			},
		})
	}

	msg.Ack()
}
