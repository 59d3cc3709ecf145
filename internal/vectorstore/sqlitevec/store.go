// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

// Package sqlitevec implements vectorstore.Store on a local SQLite
// database with the sqlite-vec extension. It is the embedded
// alternative to the Qdrant backend: same lifecycle and filter
// semantics, no external service.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/docrag/docrag/internal/vectorstore"
	docragerr "github.com/docrag/docrag/pkg/errors"
)

func init() {
	sqlite_vec.Auto()

	vectorstore.Register("sqlite", func(cfg vectorstore.Config, opts vectorstore.Options) (vectorstore.Store, error) {
		return New(cfg.SQLitePath, opts)
	})
}

// Compile-time interface check.
var _ vectorstore.Store = (*Store)(nil)

// collectionLocks serializes probe-then-create and recreate sequences
// per collection name.
var collectionLocks = vectorstore.NewLockRegistry()

// collectionName restricts collection names to SQL-safe identifiers
// since they become table name suffixes.
var collectionName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// filterOverfetch is how many extra KNN candidates are pulled when a
// filter post-selects results in Go.
const filterOverfetch = 8

// Store manages one collection as a pair of tables: a vec0 virtual
// table for embeddings and a companion payload table. Collection
// metadata (dimensions, distance) lives in a shared collections table
// so dimension enforcement survives process restarts.
type Store struct {
	db   *sql.DB
	opts vectorstore.Options

	mu    sync.Mutex
	ready bool
	dims  int
}

// New opens (or creates) the SQLite database at dbPath. The collection
// tables are created lazily on first write.
func New(dbPath string, opts vectorstore.Options) (*Store, error) {
	if dbPath == "" {
		return nil, docragerr.New(docragerr.CodeConfigValidateInvalidValue, "sqlitevec: database path is required")
	}
	if !collectionName.MatchString(opts.Collection) {
		return nil, docragerr.Errorf(docragerr.CodeConfigValidateInvalidValue,
			"sqlitevec: collection name %q must be a plain identifier", opts.Collection)
	}
	if opts.Distance == vectorstore.DistanceDot {
		return nil, docragerr.New(docragerr.CodeConfigValidateInvalidValue,
			"sqlitevec: dot-product distance is not supported by this backend, use cosine or euclid")
	}
	if opts.Distance == "" {
		opts.Distance = vectorstore.DistanceCosine
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "opening sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "pinging sqlite db")
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	dimensions INTEGER NOT NULL,
	distance   TEXT NOT NULL
)`
	if _, err := db.Exec(metaDDL); err != nil {
		_ = db.Close()
		return nil, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "creating collections table")
	}

	return &Store{db: db, opts: opts}, nil
}

func (s *Store) vecTable() string     { return "vec_" + s.opts.Collection }
func (s *Store) payloadTable() string { return "payload_" + s.opts.Collection }

// EnsureCollection creates the collection tables on first use and
// enforces the recorded dimensionality and distance metric afterwards.
// A non-positive dimensions argument falls back to the configured
// Options.Dimensions, so the collection can be prepared before any
// batch has been written.
func (s *Store) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		dimensions = s.opts.Dimensions
	}
	if dimensions <= 0 {
		return docragerr.Errorf(docragerr.CodeStoreVectorInvalid,
			"sqlitevec: dimensions must be positive, got %d", dimensions)
	}

	lock := collectionLocks.For(s.opts.Collection)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	ready, cached := s.ready, s.dims
	s.mu.Unlock()

	if ready && cached == dimensions {
		return nil
	}

	recordedDistance := s.opts.Distance
	if !ready {
		existing, distance, err := s.recordedMeta(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "probing collection metadata")
		}
		if errors.Is(err, sql.ErrNoRows) {
			if err := s.createTables(ctx, dimensions); err != nil {
				return err
			}
			s.setReady(dimensions)
			return nil
		}
		cached, recordedDistance = existing, distance
		// A handle only becomes ready when the recorded metric matches,
		// so the distance check cannot be skipped by the cache.
		if recordedDistance == s.opts.Distance {
			s.setReady(cached)
			if cached == dimensions {
				return nil
			}
		}
	}

	if !s.opts.AutoRecreate {
		if recordedDistance != s.opts.Distance {
			return docragerr.New(docragerr.CodeStoreDistanceMismatch,
				fmt.Sprintf("collection %q was created with %s distance, configured for %s",
					s.opts.Collection, recordedDistance, s.opts.Distance),
				docragerr.FieldCollection(s.opts.Collection),
				docragerr.Field("collection_distance", string(recordedDistance)),
				docragerr.Field("configured_distance", string(s.opts.Distance)))
		}
		return docragerr.New(docragerr.CodeStoreDimensionMismatch,
			fmt.Sprintf("collection %q has %d dimensions, batch has %d",
				s.opts.Collection, cached, dimensions),
			docragerr.FieldCollection(s.opts.Collection),
			docragerr.Field("collection_dimensions", cached),
			docragerr.Field("batch_dimensions", dimensions))
	}

	slog.Warn("recreating sqlite collection with a new schema; existing points are destroyed",
		"collection", s.opts.Collection,
		"old_dimensions", cached,
		"new_dimensions", dimensions,
		"old_distance", string(recordedDistance),
		"new_distance", string(s.opts.Distance))

	s.mu.Lock()
	s.ready = false
	s.dims = 0
	s.mu.Unlock()

	drops := []string{
		`DROP TABLE IF EXISTS ` + s.vecTable(),
		`DROP TABLE IF EXISTS ` + s.payloadTable(),
		`DELETE FROM collections WHERE name = '` + s.opts.Collection + `'`,
	}
	for _, stmt := range drops {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "dropping collection tables")
		}
	}
	if err := s.createTables(ctx, dimensions); err != nil {
		return err
	}
	s.setReady(dimensions)
	return nil
}

func (s *Store) recordedMeta(ctx context.Context) (int, vectorstore.Distance, error) {
	var (
		dims     int
		distance string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions, distance FROM collections WHERE name = ?`, s.opts.Collection).
		Scan(&dims, &distance)
	return dims, vectorstore.Distance(distance), err
}

func (s *Store) createTables(ctx context.Context, dimensions int) error {
	metric := "cosine"
	if s.opts.Distance == vectorstore.DistanceEuclid {
		metric = "l2"
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=%s)`,
		s.vecTable(), dimensions, metric,
	)
	if _, err := s.db.ExecContext(ctx, vecDDL); err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "creating vector table")
	}

	payloadDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL DEFAULT '{}'
)`, s.payloadTable())
	if _, err := s.db.ExecContext(ctx, payloadDDL); err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "creating payload table")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections(name, dimensions, distance) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET dimensions = excluded.dimensions, distance = excluded.distance`,
		s.opts.Collection, dimensions, string(s.opts.Distance))
	if err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "recording collection metadata")
	}
	return nil
}

func (s *Store) setReady(dimensions int) {
	s.mu.Lock()
	s.ready = true
	s.dims = dimensions
	s.mu.Unlock()
}

// exists reports whether the collection has been created, without
// creating it.
func (s *Store) exists(ctx context.Context) (bool, error) {
	_, _, err := s.recordedMeta(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "probing collection metadata")
	}
	return true, nil
}

// Upsert writes the batch by id. vec0 has no ON CONFLICT support, so
// each point is deleted then inserted inside one transaction.
func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	dims, err := vectorstore.ValidateBatch(points)
	if err != nil {
		return err
	}
	if dims == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, dims); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "beginning upsert transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range points {
		blob, err := sqlite_vec.SerializeFloat32(p.Vector)
		if err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreVectorInvalid, "serializing embedding",
				docragerr.Field("id", p.ID))
		}

		payloadJSON := []byte("{}")
		if len(p.Payload) > 0 {
			payloadJSON, err = json.Marshal(p.Payload)
			if err != nil {
				return docragerr.Wrap(err, docragerr.CodeStoreBatchInvalid, "marshalling payload",
					docragerr.Field("id", p.ID))
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.vecTable()+` WHERE id = ?`, p.ID); err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "replacing vector",
				docragerr.Field("id", p.ID))
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+s.vecTable()+`(id, embedding) VALUES (?, ?)`, p.ID, blob); err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "inserting vector",
				docragerr.Field("id", p.ID))
		}
		upsertPayload := `INSERT INTO ` + s.payloadTable() + `(id, payload) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`
		if _, err := tx.ExecContext(ctx, upsertPayload, p.ID, string(payloadJSON)); err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "upserting payload",
				docragerr.Field("id", p.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "committing upsert")
	}
	return nil
}

// Query runs a KNN search and converts vec0 distances into similarity
// scores. When a filter is present, extra candidates are fetched and
// post-selected in Go since vec0 cannot filter on the payload table
// inside the KNN constraint.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Result, error) {
	if err := vectorstore.ValidateVector(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, docragerr.Errorf(docragerr.CodeStoreBatchInvalid, "sqlitevec: topK must be positive, got %d", topK)
	}
	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil, err
		}
	}
	if err := s.EnsureCollection(ctx, len(vector)); err != nil {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeStoreVectorInvalid, "serializing query vector")
	}

	k := topK
	if filter != nil {
		k = topK * filterOverfetch
	}

	q := `SELECT v.id, v.distance, COALESCE(p.payload, '{}')
FROM ` + s.vecTable() + ` v
LEFT JOIN ` + s.payloadTable() + ` p ON p.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := s.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var results []vectorstore.Result
	for rows.Next() {
		var (
			id         string
			distance   float64
			payloadStr string
		)
		if err := rows.Scan(&id, &distance, &payloadStr); err != nil {
			return nil, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "scanning search result")
		}

		var payload map[string]any
		if payloadStr != "" && payloadStr != "{}" {
			if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
				return nil, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "unmarshalling payload",
					docragerr.Field("id", id))
			}
		}

		if filter != nil && !matchesFilter(filter, payload) {
			continue
		}

		results = append(results, vectorstore.Result{
			ID:      id,
			Score:   s.score(distance),
			Payload: payload,
		})
		if len(results) == topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "iterating search results")
	}
	return results, nil
}

// score converts a vec0 distance into the metric's similarity score.
// Cosine distance is 1 - cosine similarity; for euclid the negated
// distance keeps higher-is-better ordering.
func (s *Store) score(distance float64) float64 {
	if s.opts.Distance == vectorstore.DistanceEuclid {
		return -distance
	}
	return 1 - distance
}

// DeleteByID removes one point. A missing collection is a logged no-op.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	ok, err := s.exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("delete skipped, sqlite collection does not exist",
			"collection", s.opts.Collection, "id", id)
		return nil
	}
	return s.deleteIDs(ctx, []string{id})
}

// DeleteByFilter removes every matching point by scanning payloads and
// evaluating the filter in Go. A missing collection is a logged no-op.
func (s *Store) DeleteByFilter(ctx context.Context, filter vectorstore.Filter) error {
	if filter == nil {
		return docragerr.New(docragerr.CodeStoreFilterInvalid, "sqlitevec: delete-by-filter requires a filter")
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	ok, err := s.exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("filtered delete skipped, sqlite collection does not exist",
			"collection", s.opts.Collection)
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM `+s.payloadTable())
	if err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "scanning payloads")
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id, payloadStr string
		if err := rows.Scan(&id, &payloadStr); err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "scanning payload row")
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
			return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "unmarshalling payload",
				docragerr.Field("id", id))
		}
		if matchesFilter(filter, payload) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "iterating payload rows")
	}

	if len(ids) == 0 {
		return nil
	}
	return s.deleteIDs(ctx, ids)
}

func (s *Store) deleteIDs(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "beginning delete transaction")
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.vecTable()+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "deleting vectors")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.payloadTable()+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "deleting payloads")
	}

	if err := tx.Commit(); err != nil {
		return docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "committing delete")
	}
	return nil
}

// Stats reports the collection snapshot, or not-found if the collection
// was never created.
func (s *Store) Stats(ctx context.Context) (vectorstore.CollectionStats, error) {
	var (
		dims     int
		distance string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions, distance FROM collections WHERE name = ?`, s.opts.Collection).
		Scan(&dims, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return vectorstore.CollectionStats{}, docragerr.New(docragerr.CodeStoreCollectionNotFound,
			fmt.Sprintf("collection %q has not been created yet", s.opts.Collection),
			docragerr.FieldCollection(s.opts.Collection))
	}
	if err != nil {
		return vectorstore.CollectionStats{}, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "reading collection metadata")
	}

	var points int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.payloadTable()).Scan(&points); err != nil {
		return vectorstore.CollectionStats{}, docragerr.Wrap(err, docragerr.CodeStoreUpstreamFailure, "counting points")
	}

	return vectorstore.CollectionStats{
		Name:       s.opts.Collection,
		Dimensions: dims,
		Distance:   vectorstore.Distance(distance),
		Points:     points,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
