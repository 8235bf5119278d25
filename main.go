package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/arcgis-mcp/server/internal/agent/dispatch"
	"github.com/arcgis-mcp/server/internal/agent/model"
	"github.com/arcgis-mcp/server/internal/agent/repo"
	"github.com/arcgis-mcp/server/internal/agent/tools"
	"github.com/arcgis-mcp/server/internal/app"
	"github.com/arcgis-mcp/server/internal/arcgis"
	"github.com/arcgis-mcp/server/internal/core"
	logx "github.com/arcgis-mcp/server/pkg/logger"
	pkgredis "github.com/arcgis-mcp/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the gateway, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Host        string `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port        string `envconfig:"HTTP_PORT" default:"8000"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider: a missing API key is a fatal startup condition.
	APIKey       string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL      string `envconfig:"GEMINI_BASE_URL"`
	SystemPrompt string `envconfig:"CHAT_SYSTEM_PROMPT"`

	// Gateway configs
	Chat         model.ChatModelConfig
	Conversation model.ConversationConfig
	ArcGIS       arcgis.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	logx.Init(core.ParseEnvironment(envCfg.Environment))

	conversationRepo, closeRepo, err := buildConversationRepo(ctx, envCfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise conversation store")
	}
	defer closeRepo()

	resolver := arcgis.NewResolver(envCfg.ArcGIS)

	registry, err := tools.NewQueryRegistry(resolver)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build tool registry")
	}

	chatModel, err := dispatch.NewChatModel(ctx, envCfg.APIKey, envCfg.BaseURL, envCfg.Chat)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create chat model")
	}

	dispatcher, err := dispatch.New(chatModel, registry, conversationRepo, envCfg.SystemPrompt, envCfg.Chat.Model)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build dispatcher")
	}

	server := app.NewServer(resolver, dispatcher, envCfg.Conversation.DefaultSession)

	addr := fmt.Sprintf("%s:%s", envCfg.Host, envCfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errCh <- listenErr
			return
		}
		errCh <- nil
	}()

	logx.Info().Str("addr", addr).Str("model", envCfg.Chat.Model).Msg("Gateway listening")

	select {
	case listenErr := <-errCh:
		if listenErr != nil {
			logx.Fatal().Err(listenErr).Msg("HTTP server failed")
		}
		return
	case <-ctx.Done():
		logx.Info().Msg("Shutdown signal received, draining in-flight requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Graceful shutdown failed, forcing close")
		_ = httpServer.Close()
	}
	logx.Info().Msg("Gateway shutdown complete")
}

// buildConversationRepo selects the transcript store: Redis when configured,
// otherwise an in-process store suitable for local runs.
func buildConversationRepo(ctx context.Context, envCfg AppConfig) (model.ConversationRepository, func(), error) {
	if !envCfg.Redis.Enabled() {
		logx.Warn().Msg("REDIS_URL not set; conversations are kept in process memory")
		return repo.NewMemoryConversationRepository(), func() {}, nil
	}

	rdb, err := envCfg.Redis.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise redis client: %w", err)
	}

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", envCfg.Conversation.TTL, err)
	}

	logx.Info().Dur("ttl", ttl).Msg("Connected to Redis")
	return repo.NewRedisConversationRepository(rdb, ttl), func() { rdb.Close() }, nil
}
