package storage

import (
	"context"
	"errors"

	"pumpfeed/internal/domain"
)

// Multi fans one flush out to several archivers. Every target is
// attempted; failures are joined so one broken backend never blocks
// the others.
type Multi struct {
	targets []Archiver
}

// NewMulti combines archivers into one. Nil entries are skipped.
func NewMulti(targets ...Archiver) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

func (m *Multi) SaveTokens(ctx context.Context, tokens []*domain.Token) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.SaveTokens(ctx, tokens); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.SaveTransactions(ctx, txs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) SaveLaunches(ctx context.Context, launches []*domain.Token) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.SaveLaunches(ctx, launches); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) SaveMigrations(ctx context.Context, events []*domain.MigrationEvent) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.SaveMigrations(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every target that holds a connection.
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.targets {
		if c, ok := t.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
