package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mudler/xlog"

	"github.com/herald-ai/herald/core/assembler"
	"github.com/herald-ai/herald/core/conversations"
	"github.com/herald-ai/herald/core/dispatch"
	"github.com/herald-ai/herald/core/engine"
	"github.com/herald-ai/herald/core/gateway"
	"github.com/herald-ai/herald/core/memory"
	"github.com/herald-ai/herald/core/registry"
	"github.com/herald-ai/herald/core/tasks"
	"github.com/herald-ai/herald/core/trigger"
	"github.com/herald-ai/herald/core/types"
	"github.com/herald-ai/herald/db"
	"github.com/herald-ai/herald/ingress"
	"github.com/herald-ai/herald/pkg/llm"
	"github.com/herald-ai/herald/services/capabilities"
)

type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// primary backend
	Model  string `envconfig:"MODEL" required:"true"`
	APIURL string `envconfig:"LLM_API_URL" required:"true"`
	APIKey string `envconfig:"LLM_API_KEY"`

	// optional fallback backend
	FallbackModel  string `envconfig:"FALLBACK_MODEL"`
	FallbackAPIURL string `envconfig:"FALLBACK_LLM_API_URL"`
	FallbackAPIKey string `envconfig:"FALLBACK_LLM_API_KEY"`

	// optional last-resort local backend
	LocalModel  string `envconfig:"LOCAL_MODEL"`
	LocalAPIURL string `envconfig:"LOCAL_LLM_API_URL"`

	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingAPIURL string `envconfig:"EMBEDDING_API_URL"`
	EmbeddingAPIKey string `envconfig:"EMBEDDING_API_KEY"`

	BackendTimeout  time.Duration `envconfig:"BACKEND_TIMEOUT" default:"90s"`
	ContextTurns    int           `envconfig:"CONTEXT_TURNS" default:"10"`
	MemoryTopK      int           `envconfig:"MEMORY_TOP_K" default:"5"`
	IngressWorkers  int           `envconfig:"INGRESS_WORKERS" default:"4"`
	TaskPollSpec    string        `envconfig:"TASK_POLL" default:"@every 1m"`
	ConversationTTL time.Duration `envconfig:"CONVERSATION_TTL" default:"1h"`

	MailboxBridgeURL  string `envconfig:"MAILBOX_BRIDGE_URL"`
	CalendarBridgeURL string `envconfig:"CALENDAR_BRIDGE_URL"`
	HubSpotEnabled    bool   `envconfig:"HUBSPOT_ENABLED"`
	HubSpotClientID   string `envconfig:"HUBSPOT_CLIENT_ID"`
	HubSpotSecret     string `envconfig:"HUBSPOT_CLIENT_SECRET"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("herald", &cfg); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store types.Store
	if cfg.DatabaseURL != "" {
		gdb, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		store = db.NewGormStore(gdb)
	} else {
		xlog.Warn("No DATABASE_URL configured, running with the in-memory store")
		store = db.NewMemoryStore()
	}

	backends := []gateway.Backend{
		{
			Name:    "primary",
			Model:   cfg.Model,
			Client:  llm.NewClient(cfg.APIKey, cfg.APIURL, cfg.BackendTimeout.String()),
			Timeout: cfg.BackendTimeout,
		},
	}
	if cfg.FallbackAPIURL != "" {
		backends = append(backends, gateway.Backend{
			Name:    "fallback",
			Model:   cfg.FallbackModel,
			Client:  llm.NewClient(cfg.FallbackAPIKey, cfg.FallbackAPIURL, cfg.BackendTimeout.String()),
			Timeout: cfg.BackendTimeout,
		})
	}
	if cfg.LocalAPIURL != "" {
		backends = append(backends, gateway.Backend{
			Name:    "local",
			Model:   cfg.LocalModel,
			Client:  llm.NewClient("", cfg.LocalAPIURL, cfg.BackendTimeout.String()),
			Timeout: cfg.BackendTimeout,
		})
	}

	embeddingURL := cfg.EmbeddingAPIURL
	if embeddingURL == "" {
		embeddingURL = cfg.APIURL
	}
	embeddingKey := cfg.EmbeddingAPIKey
	if embeddingKey == "" {
		embeddingKey = cfg.APIKey
	}
	embedder := memory.NewOpenAIEmbedder(
		llm.NewClient(embeddingKey, embeddingURL, cfg.BackendTimeout.String()),
		cfg.EmbeddingModel,
	)
	mem := memory.NewStore(embedder, store)

	reg := registry.New()
	if cfg.MailboxBridgeURL != "" {
		mailbox := capabilities.NewRESTMailboxClient(cfg.MailboxBridgeURL)
		reg.Register(capabilities.NewSendEmail(mailbox))
		reg.Register(capabilities.NewSearchEmail(mailbox))
	}
	if cfg.CalendarBridgeURL != "" {
		calendar := capabilities.NewRESTCalendarClient(cfg.CalendarBridgeURL)
		reg.Register(capabilities.NewCreateCalendarEvent(calendar))
		reg.Register(capabilities.NewListCalendarEvents(calendar))
	}
	var dispatchOpts []dispatch.Option
	dispatchOpts = append(dispatchOpts, dispatch.WithMemory(mem))
	if cfg.HubSpotEnabled {
		crm := capabilities.NewHubSpotClient()
		reg.Register(capabilities.NewCreateCRMContact(crm))
		reg.Register(capabilities.NewSearchCRMContacts(crm))
		reg.Register(capabilities.NewCreateCRMNote(crm))
		dispatchOpts = append(dispatchOpts,
			dispatch.WithRefresher(capabilities.NewHubSpotRefresher(cfg.HubSpotClientID, cfg.HubSpotSecret)))
	}

	asm := assembler.New(store, mem,
		assembler.WithTurns(cfg.ContextTurns),
		assembler.WithTopK(cfg.MemoryTopK),
	)
	gw := gateway.New(backends...)
	disp := dispatch.New(reg, store, dispatchOpts...)
	guard := conversations.NewGuard(cfg.ConversationTTL)
	eng := engine.New(store, reg, asm, gw, disp, guard)

	taskRunner := tasks.NewRunner(store, eng, cfg.TaskPollSpec)
	if err := taskRunner.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer taskRunner.Stop()

	runner := trigger.NewRunner(store, eng)
	server := ingress.NewServer(runner, 0)

	xlog.Info("Starting event ingress", "addr", cfg.ListenAddr, "backends", len(backends))
	if err := server.Start(ctx, cfg.ListenAddr, cfg.IngressWorkers); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
