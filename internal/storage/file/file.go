// Package file archives collected data as timestamped JSON and CSV
// files, one subdirectory per collection.
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pumpfeed/internal/domain"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatBoth = "both"
)

// Archiver writes flushes to disk. Filenames carry a second-resolution
// timestamp so successive flushes never clobber each other.
type Archiver struct {
	dir    string
	format string
	now    func() time.Time
}

// New creates the output directory tree and returns the archiver. An
// empty format means both JSON and CSV.
func New(dir, format string) (*Archiver, error) {
	if dir == "" {
		dir = "data"
	}
	switch format {
	case FormatJSON, FormatCSV, FormatBoth:
	case "":
		format = FormatBoth
	default:
		return nil, fmt.Errorf("file: unknown format %q", format)
	}

	for _, sub := range []string{"tokens", "transactions", "launches", "migrations"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	return &Archiver{dir: dir, format: format, now: time.Now}, nil
}

// tokenRecord is the on-disk token shape.
type tokenRecord struct {
	MintAddress      string  `json:"mint_address"`
	Name             string  `json:"name"`
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	MarketCap        float64 `json:"market_cap"`
	Volume24h        float64 `json:"volume_24h"`
	CreatedTimestamp string  `json:"created_timestamp,omitempty"`
	Description      string  `json:"description,omitempty"`
	ImageURI         string  `json:"image_uri,omitempty"`
	Twitter          string  `json:"twitter,omitempty"`
	Telegram         string  `json:"telegram,omitempty"`
	Website          string  `json:"website,omitempty"`
	ScrapedAt        string  `json:"scraped_at"`
}

func toTokenRecord(t *domain.Token) tokenRecord {
	rec := tokenRecord{
		MintAddress: t.MintAddress,
		Name:        t.Name,
		Symbol:      t.Symbol,
		Price:       t.Price,
		MarketCap:   t.MarketCap,
		Volume24h:   t.Volume24h,
		Description: t.Description,
		ImageURI:    t.ImageURI,
		Twitter:     t.Twitter,
		Telegram:    t.Telegram,
		Website:     t.Website,
		ScrapedAt:   t.ScrapedAt.Format(time.RFC3339),
	}
	if t.CreatedTimestamp != nil {
		rec.CreatedTimestamp = t.CreatedTimestamp.Format(time.RFC3339)
	}
	return rec
}

var tokenHeader = []string{
	"mint_address", "name", "symbol", "price", "market_cap", "volume_24h",
	"created_timestamp", "description", "image_uri", "twitter", "telegram",
	"website", "scraped_at",
}

func (r tokenRecord) row() []string {
	return []string{
		r.MintAddress, r.Name, r.Symbol,
		strconv.FormatFloat(r.Price, 'g', -1, 64),
		strconv.FormatFloat(r.MarketCap, 'g', -1, 64),
		strconv.FormatFloat(r.Volume24h, 'g', -1, 64),
		r.CreatedTimestamp, r.Description, r.ImageURI, r.Twitter,
		r.Telegram, r.Website, r.ScrapedAt,
	}
}

// txRecord is the on-disk transaction shape.
type txRecord struct {
	Signature string  `json:"signature"`
	TokenMint string  `json:"token_mint"`
	Action    string  `json:"action"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	User      string  `json:"user,omitempty"`
	Timestamp string  `json:"timestamp"`
	ScrapedAt string  `json:"scraped_at"`
}

func toTxRecord(tx *domain.Transaction) txRecord {
	return txRecord{
		Signature: tx.Signature,
		TokenMint: tx.TokenMint,
		Action:    tx.Action,
		Amount:    tx.Amount,
		Price:     tx.Price,
		User:      tx.User,
		Timestamp: tx.Timestamp.Format(time.RFC3339),
		ScrapedAt: tx.ScrapedAt.Format(time.RFC3339),
	}
}

var txHeader = []string{
	"signature", "token_mint", "action", "amount", "price", "user",
	"timestamp", "scraped_at",
}

func (r txRecord) row() []string {
	return []string{
		r.Signature, r.TokenMint, r.Action,
		strconv.FormatFloat(r.Amount, 'g', -1, 64),
		strconv.FormatFloat(r.Price, 'g', -1, 64),
		r.User, r.Timestamp, r.ScrapedAt,
	}
}

func (a *Archiver) stamp() string {
	return a.now().Format("20060102_150405")
}

func (a *Archiver) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (a *Archiver) saveTokenSet(sub, prefix string, tokens []*domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	stamp := a.stamp()
	records := make([]tokenRecord, len(tokens))
	for i, t := range tokens {
		records[i] = toTokenRecord(t)
	}

	if a.format == FormatJSON || a.format == FormatBoth {
		path := filepath.Join(a.dir, sub, fmt.Sprintf("%s_%s.json", prefix, stamp))
		if err := a.writeJSON(path, records); err != nil {
			return err
		}
	}
	if a.format == FormatCSV || a.format == FormatBoth {
		rows := make([][]string, len(records))
		for i, r := range records {
			rows[i] = r.row()
		}
		path := filepath.Join(a.dir, sub, fmt.Sprintf("%s_%s.csv", prefix, stamp))
		if err := writeCSV(path, tokenHeader, rows); err != nil {
			return err
		}
	}
	return nil
}

// SaveTokens writes the token set as tokens/tokens_<stamp>.{json,csv}.
func (a *Archiver) SaveTokens(_ context.Context, tokens []*domain.Token) error {
	return a.saveTokenSet("tokens", "tokens", tokens)
}

// SaveLaunches writes launches/new_launches_<stamp>.{json,csv}.
func (a *Archiver) SaveLaunches(_ context.Context, launches []*domain.Token) error {
	return a.saveTokenSet("launches", "new_launches", launches)
}

// SaveTransactions writes transactions/transactions_<stamp>.{json,csv}.
func (a *Archiver) SaveTransactions(_ context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	stamp := a.stamp()
	records := make([]txRecord, len(txs))
	for i, tx := range txs {
		records[i] = toTxRecord(tx)
	}

	if a.format == FormatJSON || a.format == FormatBoth {
		path := filepath.Join(a.dir, "transactions", fmt.Sprintf("transactions_%s.json", stamp))
		if err := a.writeJSON(path, records); err != nil {
			return err
		}
	}
	if a.format == FormatCSV || a.format == FormatBoth {
		rows := make([][]string, len(records))
		for i, r := range records {
			rows[i] = r.row()
		}
		path := filepath.Join(a.dir, "transactions", fmt.Sprintf("transactions_%s.csv", stamp))
		if err := writeCSV(path, txHeader, rows); err != nil {
			return err
		}
	}
	return nil
}

// SaveMigrations writes migrations/migrations_<stamp>.json. Migration
// payloads have no fixed schema, so there is no CSV rendition.
func (a *Archiver) SaveMigrations(_ context.Context, events []*domain.MigrationEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]map[string]any, len(events))
	for i, ev := range events {
		rec := make(map[string]any, len(ev.Fields)+3)
		for k, v := range ev.Fields {
			rec[k] = v
		}
		rec["event_key"] = ev.EventKey
		if ev.Mint != "" {
			rec["mint"] = ev.Mint
		}
		if ev.ISOTime != "" {
			rec["timestamp"] = ev.ISOTime
		}
		records[i] = rec
	}
	path := filepath.Join(a.dir, "migrations", fmt.Sprintf("migrations_%s.json", a.stamp()))
	return a.writeJSON(path, records)
}
