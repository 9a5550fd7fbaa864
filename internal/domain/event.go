package domain

// EventKind classifies an inbound payload by what it describes.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventNewToken
	EventTrade
	EventMigration
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case EventNewToken:
		return "new_token"
	case EventTrade:
		return "trade"
	case EventMigration:
		return "migration"
	default:
		return "unknown"
	}
}
