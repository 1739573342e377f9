package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
)

// Store groups the repositories the pricing services use. Services depend on
// this interface, not on GORM, so unit tests can run against in-memory stubs.
type Store interface {
	Products() ProductRepository
	Rules() RuleRepository
	Ledger() LedgerRepository
	Suppliers() SupplierRepository
	Competitors() CompetitorRepository

	// Atomic runs fn inside one database transaction. Repositories obtained
	// from the Store passed to fn share that transaction.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

type gormStore struct{ db *gorm.DB }

func NewStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Products() ProductRepository       { return NewProductRepository(s.db) }
func (s *gormStore) Rules() RuleRepository             { return NewRuleRepository(s.db) }
func (s *gormStore) Ledger() LedgerRepository          { return NewLedgerRepository(s.db) }
func (s *gormStore) Suppliers() SupplierRepository     { return NewSupplierRepository(s.db) }
func (s *gormStore) Competitors() CompetitorRepository { return NewCompetitorRepository(s.db) }

func (s *gormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// notFound maps gorm.ErrRecordNotFound to the NotFound kind so callers never
// see driver errors for a missing row.
func notFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierror.NotFound(entity)
	}
	return err
}

// acquireLease claims the lease on one scheduling row (supplier API config or
// competitor config). It succeeds only if no live lease is held, so at most
// one worker across all instances runs a given target at a time.
func acquireLease(ctx context.Context, db *gorm.DB, row any, id uint, token string, now time.Time, ttl time.Duration) (bool, error) {
	res := db.WithContext(ctx).Model(row).
		Where("id = ? AND (lease_token IS NULL OR lease_expires_at IS NULL OR lease_expires_at < ?)", id, now).
		Updates(map[string]any{
			"lease_token":      token,
			"lease_expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// releaseLease drops a lease only if it is still ours.
func releaseLease(ctx context.Context, db *gorm.DB, row any, id uint, token string) error {
	return db.WithContext(ctx).Model(row).
		Where("id = ? AND lease_token = ?", id, token).
		Updates(map[string]any{
			"lease_token":      nil,
			"lease_expires_at": nil,
		}).Error
}
