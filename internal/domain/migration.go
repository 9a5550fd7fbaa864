package domain

// MigrationEvent is a lightweight record of a token's bonding-curve
// migration. The flattened vendor payload is passed through as-is with
// a derived timestamp field; deduplication is by EventKey.
type MigrationEvent struct {
	EventKey string         // signature, else "mint|timestamp"
	Mint     string         // mint address when resolvable
	Fields   map[string]any // flattened payload
	ISOTime  string         // derived RFC3339 timestamp
}
