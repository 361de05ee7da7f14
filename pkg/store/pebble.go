// Package store is the adapter over Pebble that everything above it uses.
// It exposes the four primitives the repositories are written against:
// get-by-key, conditional put, prefix range query and batch get.
//
// Pebble has no server-side conditional write, so the conditional
// operations serialize through a store-wide mutex; within one process the
// adapter is the single writer, which preserves "at most one winner" for
// key-creation and version races. Predicate rejections surface as
// errs.ErrConflict, never as a generic error, so repositories can map them
// to domain conflicts (duplicate name, stale version).
package store

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"chatdb/pkg/errs"
	"chatdb/pkg/logger"
	"chatdb/pkg/telemetry"
)

// DefaultBatchGet is the chunk size for BatchGet when the caller passes no
// explicit limit through config.
const DefaultBatchGet = 100

type Store struct {
	db   *pebble.DB
	path string

	// mu serializes conditional read-check-write sequences.
	mu sync.Mutex

	batchGet int
}

// KV is one result of a prefix query.
type KV struct {
	Key   string
	Value []byte
}

// QueryOptions bounds a prefix scan. After is an exclusive lower bound on
// the full key (pagination / watermark cursor); Limit caps the result count
// when positive.
type QueryOptions struct {
	After string
	Limit int
}

// Open opens (or creates) the Pebble database at path.
func Open(path string, batchGet int) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, errs.Unavailable("open", err)
	}
	if batchGet <= 0 {
		batchGet = DefaultBatchGet
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path, batchGet: batchGet}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return errs.Unavailable("close", err)
	}
	s.db = nil
	logger.Info("pebble_closed", "path", s.path)
	return nil
}

// Get returns the value stored under key, or errs.ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	start := time.Now()
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			telemetry.ObserveOp("get", "not_found", start)
			return nil, errs.ErrNotFound
		}
		telemetry.ObserveOp("get", "error", start)
		return nil, errs.Unavailable("get", err)
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	telemetry.ObserveOp("get", "ok", start)
	return out, nil
}

// Put writes key unconditionally.
func (s *Store) Put(key string, val []byte) error {
	start := time.Now()
	if err := s.db.Set([]byte(key), val, pebble.Sync); err != nil {
		telemetry.ObserveOp("put", "error", start)
		logger.Error("put_failed", "key", key, "error", err)
		return errs.Unavailable("put", err)
	}
	telemetry.ObserveOp("put", "ok", start)
	return nil
}

// Delete removes key; deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	start := time.Now()
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		telemetry.ObserveOp("delete", "error", start)
		return errs.Unavailable("delete", err)
	}
	telemetry.ObserveOp("delete", "ok", start)
	return nil
}

// PutIfAbsent writes key only when it does not exist yet and returns
// errs.ErrConflict when it does. This is the primitive behind every
// uniqueness guarantee (email, display name, channel name, membership).
func (s *Store) PutIfAbsent(key string, val []byte) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, closer, err := s.db.Get([]byte(key))
	switch {
	case err == nil:
		if closer != nil {
			_ = closer.Close()
		}
		telemetry.ObserveOp("put_if_absent", "conflict", start)
		telemetry.IncConflict("put_if_absent")
		return errs.ErrConflict
	case !errors.Is(err, pebble.ErrNotFound):
		telemetry.ObserveOp("put_if_absent", "error", start)
		return errs.Unavailable("put_if_absent", err)
	}
	if err := s.db.Set([]byte(key), val, pebble.Sync); err != nil {
		telemetry.ObserveOp("put_if_absent", "error", start)
		return errs.Unavailable("put_if_absent", err)
	}
	telemetry.ObserveOp("put_if_absent", "ok", start)
	return nil
}

// CompareAndSwap replaces key with val only while the stored record's
// version still equals expected. readVersion extracts the version from the
// stored value. A missing key yields errs.ErrNotFound; a version mismatch
// yields errs.ErrConflict and writes nothing. There is no retry here: the
// losing writer must re-fetch and resubmit.
func (s *Store) CompareAndSwap(key string, expected int64, val []byte, readVersion func([]byte) (int64, error)) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			telemetry.ObserveOp("cas", "not_found", start)
			return errs.ErrNotFound
		}
		telemetry.ObserveOp("cas", "error", start)
		return errs.Unavailable("cas", err)
	}
	stored := append([]byte(nil), cur...)
	if closer != nil {
		_ = closer.Close()
	}
	ver, err := readVersion(stored)
	if err != nil {
		telemetry.ObserveOp("cas", "error", start)
		return errs.Unavailable("cas", err)
	}
	if ver != expected {
		telemetry.ObserveOp("cas", "conflict", start)
		telemetry.IncConflict("cas")
		logger.Debug("cas_version_mismatch", "key", key, "expected", expected, "stored", ver)
		return errs.ErrConflict
	}
	if err := s.db.Set([]byte(key), val, pebble.Sync); err != nil {
		telemetry.ObserveOp("cas", "error", start)
		return errs.Unavailable("cas", err)
	}
	telemetry.ObserveOp("cas", "ok", start)
	return nil
}

// QueryPrefix scans all keys under prefix in ascending byte (and therefore
// chronological) order.
func (s *Store) QueryPrefix(prefix string, opts QueryOptions) ([]KV, error) {
	start := time.Now()
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		telemetry.ObserveOp("query", "error", start)
		return nil, errs.Unavailable("query", err)
	}
	defer iter.Close()

	seek := []byte(prefix)
	if opts.After != "" && opts.After > prefix {
		// exclusive lower bound: position just past After
		seek = append([]byte(opts.After), 0x00)
	}
	pfx := []byte(prefix)
	var out []KV
	for iter.SeekGE(seek); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		out = append(out, KV{Key: string(k), Value: v})
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		telemetry.ObserveOp("query", "error", start)
		return nil, errs.Unavailable("query", err)
	}
	telemetry.ObserveOp("query", "ok", start)
	return out, nil
}

// CountPrefix counts keys under prefix with an optional exclusive lower
// bound. Unread counts are computed this way on every read; nothing stores
// a counter.
func (s *Store) CountPrefix(prefix string, after string) (int, error) {
	start := time.Now()
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		telemetry.ObserveOp("count", "error", start)
		return 0, errs.Unavailable("count", err)
	}
	defer iter.Close()

	seek := []byte(prefix)
	if after != "" && after > prefix {
		seek = append([]byte(after), 0x00)
	}
	pfx := []byte(prefix)
	n := 0
	for iter.SeekGE(seek); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		n++
	}
	if err := iter.Error(); err != nil {
		telemetry.ObserveOp("count", "error", start)
		return 0, errs.Unavailable("count", err)
	}
	telemetry.ObserveOp("count", "ok", start)
	return n, nil
}

// BatchGet fetches the given keys in chunks of the configured batch size.
// Missing keys are silently dropped from the result; callers that need
// strictness must reconcile counts themselves.
func (s *Store) BatchGet(keys []string) (map[string][]byte, error) {
	start := time.Now()
	out := make(map[string][]byte, len(keys))
	for lo := 0; lo < len(keys); lo += s.batchGet {
		hi := lo + s.batchGet
		if hi > len(keys) {
			hi = len(keys)
		}
		for _, k := range keys[lo:hi] {
			v, closer, err := s.db.Get([]byte(k))
			if err != nil {
				if errors.Is(err, pebble.ErrNotFound) {
					continue
				}
				telemetry.ObserveOp("batch_get", "error", start)
				return nil, errs.Unavailable("batch_get", err)
			}
			out[k] = append([]byte(nil), v...)
			if closer != nil {
				_ = closer.Close()
			}
		}
	}
	telemetry.ObserveOp("batch_get", "ok", start)
	return out, nil
}

// ListKeys returns all keys under prefix; an empty prefix returns every key
// in the database. Used by the inspect tool.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, errs.Unavailable("list_keys", err)
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(append([]byte(nil), iter.Key()...)))
		}
	} else {
		pfx := []byte(prefix)
		for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Key(), pfx) {
				break
			}
			out = append(out, string(append([]byte(nil), iter.Key()...)))
		}
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Unavailable("list_keys", err)
	}
	return out, nil
}
