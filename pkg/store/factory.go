package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/offlinequeue/pkg/config"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/store/dynamodb"
	"github.com/nimburion/offlinequeue/pkg/store/memory"
	"github.com/nimburion/offlinequeue/pkg/store/mongodb"
	"github.com/nimburion/offlinequeue/pkg/store/mysql"
	"github.com/nimburion/offlinequeue/pkg/store/postgres"
	"github.com/nimburion/offlinequeue/pkg/store/redis"
	"github.com/nimburion/offlinequeue/pkg/store/s3"
	"github.com/nimburion/offlinequeue/pkg/store/sqlite"
)

// NewKVStore opens the key-value store selected by cfg.Type.
func NewKVStore(cfg config.StoreConfig, log logger.Logger) (KV, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.StoreTypeMemory:
		log.Warn("using in-memory store, queued mutations will not survive a restart")
		return memory.New(), nil
	case config.StoreTypeSQLite:
		return opened(sqlite.NewAdapter(sqlite.Config{
			Path:             cfg.Path,
			Table:            cfg.Table,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.StoreTypePostgres:
		return opened(postgres.NewPostgreSQLAdapter(postgres.Config{
			URL:             cfg.URL,
			Table:           cfg.Table,
			AutoMigrate:     cfg.AutoMigrate,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.OperationTimeout,
		}, log))
	case config.StoreTypeMySQL:
		return opened(mysql.NewMySQLAdapter(mysql.Config{
			URL:             cfg.URL,
			Table:           cfg.Table,
			AutoMigrate:     cfg.AutoMigrate,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.OperationTimeout,
		}, log))
	case config.StoreTypeRedis:
		return opened(redis.NewRedisAdapter(redis.Config{
			URL:              cfg.URL,
			MaxConns:         cfg.MaxConns,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.StoreTypeMongoDB:
		return opened(mongodb.NewMongoDBAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			Collection:       cfg.Collection,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.StoreTypeDynamoDB:
		return opened(dynamodb.NewDynamoDBAdapter(dynamodb.Config{
			Table:            cfg.Table,
			Region:           cfg.Region,
			Endpoint:         cfg.Endpoint,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	case config.StoreTypeS3:
		return opened(s3.NewS3Adapter(s3.Config{
			Bucket:           cfg.Bucket,
			Prefix:           cfg.Prefix,
			Region:           cfg.Region,
			Endpoint:         cfg.Endpoint,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			UsePathStyle:     cfg.UsePathStyle,
			OperationTimeout: cfg.OperationTimeout,
		}, log))
	default:
		return nil, fmt.Errorf("unsupported store.type %q (supported: memory, sqlite, postgres, mysql, redis, mongodb, dynamodb, s3)", cfg.Type)
	}
}

// opened keeps a failed constructor's typed nil out of the KV interface.
func opened[T KV](kv T, err error) (KV, error) {
	if err != nil {
		return nil, err
	}
	return kv, nil
}
