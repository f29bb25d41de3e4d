package bootstrap

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"ai-supportdesk-be/internal/config"
	"ai-supportdesk-be/internal/controller"
	"ai-supportdesk-be/internal/handler"
	"ai-supportdesk-be/internal/pkg/logger"
	"ai-supportdesk-be/internal/pkg/mailer"
	"ai-supportdesk-be/internal/pkg/serverutils"
	"ai-supportdesk-be/internal/repository/memory"
	"ai-supportdesk-be/internal/repository/unitofwork"
	"ai-supportdesk-be/internal/service"
	"ai-supportdesk-be/internal/websocket"
	"ai-supportdesk-be/pkg/dialogue/clarify"
	"ai-supportdesk-be/pkg/dialogue/graph"
	"ai-supportdesk-be/pkg/dialogue/planner"
	"ai-supportdesk-be/pkg/dialogue/prompt"
	"ai-supportdesk-be/pkg/dialogue/retrievalexec"
	"ai-supportdesk-be/pkg/dialogue/ticket"
	"ai-supportdesk-be/pkg/embedding"
	"ai-supportdesk-be/pkg/embedding/jina"
	"ai-supportdesk-be/pkg/llm/factory"
	"ai-supportdesk-be/pkg/retrieval/lexical"
	"ai-supportdesk-be/pkg/retrieval/semantic"

	"ai-supportdesk-be/pkg/events"
	pktNats "ai-supportdesk-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AuthController      controller.IAuthController
	ChatController      controller.IChatController
	TicketController    controller.ITicketController
	KnowledgeController controller.IKnowledgeController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	EventStreamHandler *handler.EventStreamHandler
	WebSocketHub       *websocket.Hub

	// Shared app logger (also used by the server's error middleware)
	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.Email,
		cfg.SMTP.SupportInbox,
	)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "jina" {
		embeddingProvider = jina.NewJinaProvider(cfg.Ai.JinaAPIKey)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
	}

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Retrieval Stack
	retrievalLogger := newFileLogger("logs/retrieval.log", "[RETRIEVAL] ")
	source := newKnowledgeSource(uowFactory)
	lexicalRetriever := lexical.NewRetriever(source, retrievalLogger)
	semanticRetriever := semantic.NewRetriever(source, embeddingProvider, retrievalLogger)

	// 5. Dialogue Graph
	dialogueLogger := newFileLogger("logs/dialogue.log", "[DIALOGUE] ")
	budgets := planner.Budgets{
		MaxRetrievals:     cfg.Chat.MaxRetrievalAttempts,
		MaxClarifications: 1,
	}
	dialoguePlanner := planner.NewPlanner(llmProvider, budgets, dialogueLogger)
	executor := retrievalexec.NewExecutor(
		lexicalRetriever,
		semanticRetriever,
		source,
		cfg.Chat.RetrievalTopK,
		time.Duration(cfg.Chat.RetrievalTimeoutSeconds)*time.Second,
		dialogueLogger,
	)
	clarifier := clarify.NewNode()
	ticketNode := ticket.NewNode(llmProvider, dialogueLogger)
	assembler := prompt.NewAssembler(cfg.Chat.MaxSnippetTurns)

	orchestrator := graph.NewOrchestrator(
		dialoguePlanner,
		executor,
		clarifier,
		ticketNode,
		assembler,
		llmProvider,
		graph.Config{
			MaxSnippetTurns:      cfg.Chat.MaxSnippetTurns,
			LockoutPermanent:     cfg.Chat.TicketLockoutPermanent,
			LLMTimeout:           time.Duration(cfg.Chat.LLMTimeoutSeconds) * time.Second,
			StopAfterStaleRounds: 2,
		},
		dialogueLogger,
	)

	// Initialize In-Memory Session Storage
	sessionRepo := memory.NewSessionRepository()

	// 6. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Durable audit trail for submitted tickets: a crash between DB commit
	// and log write does not lose the record.
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		err = natsSub.Subscribe(events.TicketSubmittedType, "supportdesk-ticket-audit",
			func(ctx context.Context, event events.Event) error {
				sysLogger.Info("ticket", "Ticket submitted", event.Payload())
				return nil
			})
		if err != nil {
			log.Printf("[WARN] Failed to subscribe ticket audit consumer: %v", err)
		}
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/events.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 7. Services
	publisherService := service.NewPublisherService(pubSub, cfg.App.KnowledgeTopic)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.KnowledgeTopic,
		lexicalRetriever,
		semanticRetriever,
		wsHub,
	)

	authService := service.NewAuthService(uowFactory, cfg.App.JWTSecret)
	chatService := service.NewChatService(uowFactory, sessionRepo, orchestrator)
	ticketService := service.NewTicketService(
		uowFactory,
		chatService,
		orchestrator,
		emailService,
		natsPub,
		wsHub,
	)
	knowledgeService := service.NewKnowledgeService(
		uowFactory,
		publisherService,
		embeddingProvider,
	)

	// WebSocket Handler
	eventStreamHandler := handler.NewEventStreamHandler(wsHub, wsLogger)

	// 8. Controllers
	jwtAuth := serverutils.NewJwtMiddleware(cfg.App.JWTSecret)
	return &Container{
		AuthController:      controller.NewAuthController(authService),
		ChatController:      controller.NewChatController(chatService, jwtAuth),
		TicketController:    controller.NewTicketController(ticketService, jwtAuth),
		KnowledgeController: controller.NewKnowledgeController(knowledgeService, jwtAuth),

		ConsumerService: consumerService,

		EventStreamHandler: eventStreamHandler,
		WebSocketHub:       wsHub,
		Logger:             sysLogger,
	}
}

func newFileLogger(path, prefix string) *log.Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return log.New(os.Stdout, prefix, log.LstdFlags)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, prefix, log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}
