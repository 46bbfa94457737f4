package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"local-chat/internal/config"
	"local-chat/internal/integrations/ollama"
	"local-chat/internal/integrations/paramstore"
	"local-chat/internal/repository"
	"local-chat/internal/usecase"
)

// modelParameter is the SSM key, relative to PARAM_PREFIX, that overrides OLLAMA_MODEL.
const modelParameter = "config/model"

// App holds the wired chat service and the resources it owns.
type App struct {
	Chat  *usecase.ChatService
	Store *repository.Store
	Model string
}

var loadAWSConfig = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// Build wires the store, completion client and chat service described by cfg.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = loadAWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
	}

	model := cfg.Model
	if cfg.ParamPrefix != "" {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
		if err != nil {
			return nil, fmt.Errorf("app: create SSM client: %w", err)
		}
		model, err = params.Lookup(ctx, modelParameter, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("app: resolve model: %w", err)
		}
	}

	backend, err := openBackend(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	store, err := repository.NewStore(backend, logger)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("app: create store: %w", err)
	}

	client, err := ollama.NewClient(model,
		ollama.WithBaseURL(cfg.OllamaURL),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		ollama.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: create ollama client: %w", err)
	}

	chat, err := usecase.NewChatService(store, client, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}

	logger.Info("chat service ready", "store", cfg.StoreDriver, "model", model, "endpoint", cfg.OllamaURL)
	return &App{Chat: chat, Store: store, Model: model}, nil
}

func openBackend(ctx context.Context, cfg config.Config, awsCfg aws.Config) (repository.Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryBackend(), nil
	case config.DriverSQLite:
		b, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return b, nil
	case config.DriverBadger:
		b, err := repository.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return b, nil
	case config.DriverDynamoDB:
		b, err := repository.NewDynamoBackend(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.HistoryID)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
}

func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return errors.New("app: not initialized")
	}
	return a.Store.Close()
}
