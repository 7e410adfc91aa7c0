package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/lightkeepers/fieldsync/internal/config"
	"github.com/lightkeepers/fieldsync/internal/credential"
	"github.com/lightkeepers/fieldsync/internal/db"
	"github.com/lightkeepers/fieldsync/internal/model"
	"github.com/lightkeepers/fieldsync/internal/outbox"
	"github.com/lightkeepers/fieldsync/internal/repository"
	"github.com/lightkeepers/fieldsync/internal/syncqueue"
)

// core bundles the wired components shared by the serve and publisher
// commands.
type core struct {
	mysql      *sqlx.DB
	redis      *redis.Client
	outboxRepo repository.OutboxRepository
	bus        *outbox.Bus
	publisher  *outbox.Publisher
	retention  *outbox.Retention
	kafkaSink  *outbox.KafkaSink
	appender   *outbox.Appender
	queue      *syncqueue.Queue
	drainer    *syncqueue.Drainer
	creds      *credential.Service
}

// relayItem hands a drained queue item to the outbox, so upstream delivery
// inherits the outbox's at-least-once retry and dead-letter handling.
func (c *core) relayItem(ctx context.Context, item model.SyncItem) error {
	_, err := c.appender.Append(ctx, nil, "sync."+item.Type, aggregateForItem(item.Type), item.ID,
		item.Payload, model.EventMetadata{CorrelationID: item.ID})
	return err
}

func aggregateForItem(itemType string) model.AggregateType {
	switch itemType {
	case "resource_request":
		return model.AggregateResource
	case "status_update":
		return model.AggregatePerson
	default:
		return model.AggregateComms
	}
}

func (c *core) close() {
	if c.kafkaSink != nil {
		_ = c.kafkaSink.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.mysql != nil {
		_ = c.mysql.Close()
	}
}

func buildCore(cfg config.Config) (*core, error) {
	c := &core{}

	mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	c.mysql = mysqlDB

	redisClient, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	c.redis = redisClient

	// outbox
	c.outboxRepo = repository.NewOutboxRepository(mysqlDB)
	c.appender = outbox.NewAppender(c.outboxRepo)
	c.bus = outbox.NewBus()
	c.publisher = outbox.NewPublisher(c.outboxRepo, c.bus, cfg.Outbox.BatchSize, cfg.Outbox.MaxRetries, cfg.Outbox.PollInterval)
	c.retention = outbox.NewRetention(c.outboxRepo, cfg.Outbox.Retention, cfg.Outbox.RetentionInterval)

	if cfg.Kafka.Enabled {
		c.kafkaSink = outbox.NewKafkaSink(outbox.KafkaSinkConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			BatchMax: cfg.Kafka.BatchMax,
		})
		c.bus.Subscribe(outbox.WildcardEventType, c.kafkaSink.Handle)
	}

	// priority sync queue
	var queueStore syncqueue.Store
	if cfg.SyncQueue.Store == "redis" {
		queueStore = syncqueue.NewRedisStore(redisClient, cfg.SyncQueue.KeyPrefix)
	} else {
		queueStore = syncqueue.NewMemoryStore()
	}
	c.queue = syncqueue.New(queueStore, cfg.SyncQueue.MaxAttempts)
	c.drainer = syncqueue.NewDrainer(c.queue, c.relayItem, cfg.SyncQueue.DrainInterval, cfg.SyncQueue.CleanupInterval)

	// offline credentials
	priv, pub, err := credential.DecodeKeys(cfg.Credential.PrivateKey, cfg.Credential.PublicKey)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("credential keys: %w", err)
	}
	var revocations credential.RevocationStore
	if cfg.Credential.RevocationStore == "redis" {
		revocations = credential.NewRedisRevocationStore(redisClient, "revoked:")
	} else {
		revocations = credential.NewMemoryRevocationStore()
	}
	issuer := credential.NewIssuer(cfg.Credential.Issuer, cfg.Credential.Audience, priv, cfg.Credential.TokenTTL)
	verifier := credential.NewVerifier(cfg.Credential.Issuer, cfg.Credential.Audience, pub, revocations, cfg.Credential.RenewWindow)
	cache := credential.NewPermissionCache(cfg.Credential.PermissionTTL)
	c.creds = credential.NewService(issuer, verifier, revocations, cache)

	return c, nil
}
