package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
}

// URI builds the connection string for cfg with escaped credentials.
func URI(cfg config.Database) string {
	if cfg.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d/", cfg.Host, cfg.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
	)
}

func ConnectDatabase(ctx context.Context, cfg config.Database, appName string) (*Database, error) {
	logger.DebugF("Connecting to database...")

	clientOptions := options.Client().ApplyURI(URI(cfg)).SetAppName(appName)
	clientOptions.SetMinPoolSize(cfg.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(config.Duration(cfg.ConnectIdleTimeout))
	clientOptions.SetConnectTimeout(config.Duration(cfg.ConnectTimeout))
	clientOptions.SetSocketTimeout(config.Duration(cfg.SocketTimeout))
	clientOptions.SetHeartbeatInterval(config.Duration(cfg.Heartbeat))
	if cfg.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %s#%d", evt.Address, evt.ConnectionID)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %s#%d (%s)", evt.Address, evt.ConnectionID, evt.Reason)
			}
		},
	})

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}
	if err = client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	d := &Database{
		client:           client,
		db:               client.Database(cfg.Database),
		operationTimeout: config.Duration(cfg.OperationTimeout),
	}
	if d.operationTimeout <= 0 {
		d.operationTimeout = 5 * time.Second
	}
	if err := d.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, err
	}
	logger.InfoF("Connected to database %s", cfg.Database)
	return d, nil
}

func (d *Database) ensureIndexes(ctx context.Context) error {
	_, err := d.db.Collection(UserCollectionName).Indexes().CreateOne(ctx,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_username_unique"),
		},
	)
	if err != nil {
		return fmt.Errorf("error occured while creating database indexes: %w", err)
	}
	_, err = d.db.Collection(LoginHistoryCollectionName).Indexes().CreateOne(ctx,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "username", Value: 1}, {Key: "login_at", Value: -1}},
			Options: options.Index().SetName("login_history_username"),
		},
	)
	if err != nil {
		return fmt.Errorf("error occured while creating database indexes: %w", err)
	}
	return nil
}

func (d *Database) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

func (d *Database) OperationTimeout() time.Duration {
	return d.operationTimeout
}

// Invoke disconnects the client; it is registered with the shutdown cleaner.
func (d *Database) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	return d.client.Disconnect(ctx)
}
