package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/auth"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReportFilename is stored for every tracked game-event report.
const ReportFilename = "game_events.json"

// UserStore keeps users, login history and reports in MongoDB.
type UserStore struct {
	db *Database
}

func NewUserStore(db *Database) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindUser(ctx context.Context, username string) (auth.User, error) {
	var user auth.User
	startTime := time.Now()
	err := s.db.Collection(UserCollectionName).FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&user)
	logger.DebugF("user query cost: %v", time.Since(startTime))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return auth.User{}, auth.ErrUserNotFound
		}
		return auth.User{}, fmt.Errorf("database operation failed: %w", err)
	}
	return user, nil
}

func (s *UserStore) CreateUser(ctx context.Context, user auth.User) error {
	_, err := s.db.Collection(UserCollectionName).InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.ErrUserExists
		}
		return fmt.Errorf("database operation failed: %w", err)
	}
	return nil
}

func (s *UserStore) RecordLogin(ctx context.Context, username string, connID int64, at time.Time) error {
	_, err := s.db.Collection(LoginHistoryCollectionName).InsertOne(ctx, LoginRecord{
		Username:     username,
		ConnectionID: connID,
		LoginAt:      at,
	})
	if err != nil {
		return fmt.Errorf("database operation failed: %w", err)
	}
	return nil
}

// RecordLogout closes the newest open login record of username on connID.
func (s *UserStore) RecordLogout(ctx context.Context, username string, connID int64, at time.Time) error {
	filter := bson.D{
		{Key: "username", Value: username},
		{Key: "connection_id", Value: connID},
		{Key: "logout_at", Value: bson.D{{Key: "$exists", Value: false}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "logout_at", Value: at}}}}
	opts := options.FindOneAndUpdate().SetSort(bson.D{{Key: "login_at", Value: -1}})

	err := s.db.Collection(LoginHistoryCollectionName).FindOneAndUpdate(ctx, filter, update, opts).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("no open login record for %s: %w", username, err)
		}
		return fmt.Errorf("database operation failed: %w", err)
	}
	return nil
}

func (s *UserStore) TrackReport(username, channel string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.db.OperationTimeout())
	defer cancel()

	_, err := s.db.Collection(ReportCollectionName).InsertOne(ctx, ReportRecord{
		Username:   username,
		Channel:    channel,
		Filename:   ReportFilename,
		ReportedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("database operation failed: %w", err)
	}
	return nil
}
