package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	s3blob "github.com/forescene/forescene/internal/blob/s3"
	"github.com/forescene/forescene/internal/cache/redis"
	"github.com/forescene/forescene/internal/chain"
	"github.com/forescene/forescene/internal/config"
	"github.com/forescene/forescene/internal/crypto"
	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/notify"
	"github.com/forescene/forescene/internal/pinning"
	"github.com/forescene/forescene/internal/reads"
	"github.com/forescene/forescene/internal/sequencer"
	"github.com/forescene/forescene/internal/service"
	"github.com/forescene/forescene/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger
	Reader *chain.Reader
	Writer *chain.Writer

	// Caches and coordination
	RecordCache   domain.RecordCache
	PositionCache domain.PositionCache
	Overlay       domain.OverlayStore
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Persistence
	RecordStore   domain.RecordStore
	PositionStore domain.PositionStore

	// Off-chain content
	Pinner *pinning.Client
	Mirror domain.BlobWriter // nil unless S3 is enabled

	// Archival (nil unless S3 is enabled)
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Services
	Records   *service.RecordService
	Positions *service.PositionService
	Sequences *service.SequenceService
}

// mirroringUploader pins through the content service and copies each payload
// to object storage under its CID. A failed mirror copy never fails the pin.
type mirroringUploader struct {
	inner  sequencer.Uploader
	mirror domain.BlobWriter
	logger *slog.Logger
}

func (u *mirroringUploader) PinFile(ctx context.Context, name string, data []byte, contentType string, keyvalues map[string]string) (domain.ContentDescriptor, error) {
	desc, err := u.inner.PinFile(ctx, name, data, contentType, keyvalues)
	if err != nil {
		return desc, err
	}
	u.copy(ctx, desc.CID, data, contentType)
	return desc, nil
}

func (u *mirroringUploader) PinJSON(ctx context.Context, name string, v any) (domain.ContentDescriptor, error) {
	desc, err := u.inner.PinJSON(ctx, name, v)
	if err != nil {
		return desc, err
	}
	if data, jsonErr := json.Marshal(v); jsonErr == nil {
		u.copy(ctx, desc.CID, data, "application/json")
	}
	return desc, nil
}

func (u *mirroringUploader) copy(ctx context.Context, cid string, data []byte, contentType string) {
	if err := u.mirror.Put(ctx, "content/"+cid, bytes.NewReader(data), contentType); err != nil {
		u.logger.WarnContext(ctx, "mirror write failed",
			slog.String("cid", cid),
			slog.String("error", err.Error()),
		)
	}
}

// needsWriter returns true for modes that submit transactions.
func needsWriter(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger client ---
	chainClient, err := chain.Dial(ctx, chain.Config{
		RPCURL:              cfg.Chain.RPCURL,
		ChainID:             cfg.Chain.ChainID,
		Registry:            cfg.Chain.Registry,
		Token:               cfg.Chain.Token,
		Multicall:           cfg.Chain.Multicall,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Reader = chain.NewReader(chainClient)

	if needsWriter(cfg.Mode) {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		writer, err := chain.NewWriter(chainClient, key, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain writer: %w", err)
		}
		deps.Writer = writer
	}

	// --- Pinning ---
	pinClient := pinning.NewClient(cfg.Pinning.APIURL, cfg.Pinning.Token, cfg.Pinning.GatewayURL)
	deps.Pinner = pinClient
	gateways := cfg.Pinning.Gateways
	if len(gateways) == 0 && cfg.Pinning.GatewayURL != "" {
		gateways = []string{cfg.Pinning.GatewayURL}
	}
	resolver := pinning.NewResolver(gateways, cfg.Pinning.Timeout.Duration)

	// --- Aggregated reads ---
	aggregator := reads.NewAggregator(deps.Reader, resolver, cfg.Reads.Fanout, logger)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RecordCache = redis.NewRecordCache(redisClient)
	deps.PositionCache = redis.NewPositionCache(redisClient)
	deps.Overlay = redis.NewOverlayStore(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	recordStore := postgres.NewRecordStore(pool)
	deps.RecordStore = recordStore
	deps.PositionStore = postgres.NewPositionStore(pool)

	// --- S3 archival (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		blobWriter := s3blob.NewWriter(s3Client)
		deps.Mirror = blobWriter
		deps.Archiver = s3blob.NewArchiver(
			blobWriter,
			s3blob.NewReader(s3Client),
			recordStore,
			cfg.Chain.ChainID,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.Records = service.NewRecordService(service.RecordServiceConfig{
		Fetcher:   aggregator,
		Cache:     deps.RecordCache,
		Overlay:   deps.Overlay,
		Store:     deps.RecordStore,
		Locks:     deps.LockManager,
		Bus:       deps.SignalBus,
		Events:    deps.Notifier,
		ChainID:   cfg.Chain.ChainID,
		Staleness: cfg.Reads.Staleness.Duration,
		Logger:    logger,
	})
	deps.Positions = service.NewPositionService(service.PositionServiceConfig{
		Records:   deps.Records,
		Fetcher:   aggregator,
		Cache:     deps.PositionCache,
		Store:     deps.PositionStore,
		ChainID:   cfg.Chain.ChainID,
		Staleness: cfg.Reads.Staleness.Duration,
		Logger:    logger,
	})

	if deps.Writer != nil {
		var uploader sequencer.Uploader = pinClient
		if deps.Mirror != nil {
			uploader = &mirroringUploader{inner: pinClient, mirror: deps.Mirror, logger: logger}
		}
		deps.Sequences = service.NewSequenceService(sequencer.Deps{
			Allowance:   deps.Reader,
			Submitter:   deps.Writer,
			Uploader:    uploader,
			Invalidator: service.Invalidators{deps.Records, deps.Positions},
			Account:     deps.Writer.Account(),
			ChainID:     cfg.Chain.ChainID,
			Logger:      logger,
		}, deps.SignalBus, deps.Notifier, logger)
	}

	return deps, cleanup, nil
}
