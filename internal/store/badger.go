// Package store provides tenant-scoped persistence over BadgerDB.
//
// The store is the persistence consumer of the isolation engine: every key
// passes through the isolation resolver before it reaches Badger, so data
// written by different tenants occupies disjoint key ranges in the same
// database file. Range scans are bounded by the derived prefix and therefore
// can never cross a tenant boundary.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/piwi3910/tenantcore/internal/isolation"
	"github.com/piwi3910/tenantcore/internal/metrics"
	"github.com/piwi3910/tenantcore/internal/tenantctx"
)

// ErrKeyNotFound is returned when a key does not exist within the active
// isolation scope.
var ErrKeyNotFound = errors.New("store: key not found")

// TenantStore is a key-value store whose keys are derived through the
// isolation resolver.
type TenantStore struct {
	db            *badger.DB
	resolver      *isolation.Resolver
	level         isolation.Level
	allowUnscoped bool
}

// Open opens (or creates) the store under dataDir.
func Open(dataDir string, resolver *isolation.Resolver, allowUnscoped bool) (*TenantStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dataDir, "store"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return newStore(db, resolver, allowUnscoped), nil
}

// OpenInMemory opens an ephemeral store, used in tests.
func OpenInMemory(resolver *isolation.Resolver, allowUnscoped bool) (*TenantStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}

	return newStore(db, resolver, allowUnscoped), nil
}

func newStore(db *badger.DB, resolver *isolation.Resolver, allowUnscoped bool) *TenantStore {
	return &TenantStore{
		db:            db,
		resolver:      resolver,
		level:         resolver.DefaultLevel(),
		allowUnscoped: allowUnscoped,
	}
}

// AtLevel returns a view of the store isolated at a specific level.
func (s *TenantStore) AtLevel(level isolation.Level) *TenantStore {
	scoped := *s
	scoped.level = level

	return &scoped
}

func (s *TenantStore) isolate(ctx context.Context, rawKey string) (string, error) {
	key, err := s.resolver.IsolateKey(ctx, s.level, rawKey)
	if err == nil {
		return key, nil
	}

	if errors.Is(err, tenantctx.ErrContextMissing) {
		metrics.ContextMissingTotal.Inc()
		if s.allowUnscoped {
			return rawKey, nil
		}
	}

	var tooLong *isolation.KeyTooLongError
	if errors.As(err, &tooLong) {
		metrics.KeysTooLongTotal.Inc()
	}

	return "", err
}

// Put stores value under rawKey within the active isolation scope.
func (s *TenantStore) Put(ctx context.Context, rawKey string, value []byte) error {
	key, err := s.isolate(ctx, rawKey)
	if err != nil {
		return err
	}

	metrics.RecordIsolationOp(s.level.String(), "store_put")

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get returns the value for rawKey within the active isolation scope.
func (s *TenantStore) Get(ctx context.Context, rawKey string) ([]byte, error) {
	key, err := s.isolate(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	metrics.RecordIsolationOp(s.level.String(), "store_get")

	var value []byte

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Delete removes rawKey within the active isolation scope.
func (s *TenantStore) Delete(ctx context.Context, rawKey string) error {
	key, err := s.isolate(ctx, rawKey)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// ListKeys returns the raw keys under rawPrefix within the active isolation
// scope. The derived prefix bounds the scan, so results never include
// another tenant's keys.
func (s *TenantStore) ListKeys(ctx context.Context, rawPrefix string) ([]string, error) {
	prefix, err := s.isolate(ctx, rawPrefix)
	if err != nil {
		return nil, err
	}

	// The raw prefix shares the derived key's isolation prefix; strip it
	// back off for callers.
	scopeLen := len(prefix) - len(rawPrefix)

	var keys []string

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			keys = append(keys, key[scopeLen:])
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Ping verifies the store is usable.
func (s *TenantStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("store: database is closed")
	}

	return nil
}

// Close closes the underlying database.
func (s *TenantStore) Close() error {
	return s.db.Close()
}
