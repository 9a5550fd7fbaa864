package domain

import "time"

// SessionStats holds counters for one scraping session. Values are
// point-in-time copies; the live counters are owned by the store.
type SessionStats struct {
	SessionStart        time.Time
	MessagesReceived    int64
	ParseErrors         int64
	ConnectionErrors    int64
	ReconnectAttempts   int64
	TokensCollected     int
	TransactionsStored  int
	NewLaunches         int
	Migrations          int
	DuplicatesDropped   int64
	PersistFlushes      int64
	PersistFailures     int64
}

// Snapshot is a read-only copy of the merge store's collections,
// consumed by the persistence driver and the dashboard read model.
type Snapshot struct {
	Tokens       []*Token
	Transactions []*Transaction
	NewLaunches  []*Token
	Migrations   []*MigrationEvent
	Stats        SessionStats
	TakenAt      time.Time
}
