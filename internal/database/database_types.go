package database

import "time"

const (
	UserCollectionName         = "users"
	LoginHistoryCollectionName = "login_history"
	ReportCollectionName       = "reports"
)

type LoginRecord struct {
	Username     string     `bson:"username"`
	ConnectionID int64      `bson:"connection_id"`
	LoginAt      time.Time  `bson:"login_at"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty"`
}

type ReportRecord struct {
	Username   string    `bson:"username"`
	Channel    string    `bson:"channel"`
	Filename   string    `bson:"filename"`
	ReportedAt time.Time `bson:"reported_at"`
}
