package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"talahum/internal/amqp"
	"talahum/internal/memory"
	"talahum/internal/ports"
	"talahum/internal/remote"
	"talahum/internal/sequence"
	"talahum/internal/services"
	"talahum/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// composite assembles the three ports from separately chosen parts.
type composite struct {
	ports.SubscriberSource
	ports.ReceiptSequencer
	ports.PaymentWriter
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var base Backend
	var err error
	switch config.Type {
	case APIBackend:
		base, err = f.createAPIBackend(config)
	case MemoryBackend:
		base, err = f.createMemoryBackend(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	var cleanups []CleanupFunc
	result := &BackendResult{}
	b := composite{
		SubscriberSource: base,
		ReceiptSequencer: base,
		PaymentWriter:    base,
	}

	if config.Sequence == RedisSequence {
		client, err := sequence.NewClient(ctx, config.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis sequence: %w", err)
		}
		cleanups = append(cleanups, client.Close)
		b.ReceiptSequencer = sequence.NewRedisSequencer(client, config.RedisSequenceKey, base)
		f.logger.Info("Initialized redis receipt sequence", "addr", config.RedisAddr)
	}

	if config.SQLiteDBPath != "" {
		svc, repo, err := f.createJournal(config, base)
		if err != nil {
			runCleanups(cleanups)
			return nil, err
		}
		cleanups = append(cleanups, svc.Close)
		b.PaymentWriter = svc
		result.Journal = repo
	}

	result.Backend = b
	result.Cleanup = func() error { return runCleanups(cleanups) }
	return result, nil
}

func (f *DefaultFactory) createAPIBackend(config Config) (Backend, error) {
	var tokens remote.TokenSource = remote.StaticToken(config.APIToken)
	if config.APITokenFile != "" {
		tokens = remote.FileToken{Path: config.APITokenFile}
	}

	var opts []remote.Option
	if config.APITimeout > 0 {
		opts = append(opts, remote.WithTimeout(config.APITimeout))
	}
	client, err := remote.New(config.APIBaseURL, tokens, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API client: %w", err)
	}

	f.logger.Info("Initialized API backend", "base_url", config.APIBaseURL)
	return client, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (Backend, error) {
	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}

	seed := config.SeedFile
	if seed == "" {
		seed = "embedded"
	}
	f.logger.Info("Initialized memory backend", "seed", seed)
	return store, nil
}

// createJournal wraps writer so every captured payment is journaled and,
// when AMQP is configured, announced to the receipt worker.
func (f *DefaultFactory) createJournal(config Config, writer ports.PaymentWriter) (*services.PaymentService, *storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// Initialize AMQP client (optional)
	var publisher services.ReceiptPublisher
	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without receipt events", "error", err)
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.Info("Initialized receipt journal",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return services.NewPaymentService(writer, repo, publisher), repo, nil
}

func runCleanups(cleanups []CleanupFunc) error {
	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
