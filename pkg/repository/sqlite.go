package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto() // registers the vec0 virtual table with go-sqlite3
}

// SQLite is the local single-node Repository. Vector search uses the
// sqlite-vec vec0 virtual table when the extension loads, with a full-scan
// cosine fallback otherwise. Profiles are read through a ristretto cache
// invalidated on every write.
type SQLite struct {
	db   *sql.DB
	path string

	vecAvailable bool
	vecMu        sync.Mutex
	vecDim       int // dimension of fact_vec (0 = not yet created)

	profileCache *ristretto.Cache
}

// NewSQLite opens or creates the database at path.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("dir", dir))
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to ping database")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to enable foreign keys")
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to create profile cache")
	}

	r := &SQLite{db: db, path: path, profileCache: cache}

	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	// vec0 availability decides whether KNN queries or full scans serve
	// similarity search
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err == nil {
		r.vecAvailable = true
		if err := r.initVecTableFromFacts(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		agent_id          TEXT PRIMARY KEY,
		openness          REAL NOT NULL,
		conscientiousness REAL NOT NULL,
		extraversion      REAL NOT NULL,
		agreeableness     REAL NOT NULL,
		neuroticism       REAL NOT NULL,
		bias_strength     REAL NOT NULL,
		background        TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMP NOT NULL,
		updated_at        TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS facts (
		id             TEXT UNIQUE NOT NULL,
		agent_id       TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
		text           TEXT NOT NULL,
		type           TEXT NOT NULL,
		occurred_start TIMESTAMP,
		occurred_end   TIMESTAMP,
		entities       TEXT,
		context        TEXT NOT NULL DEFAULT '',
		document_id    TEXT NOT NULL,
		embedding      BLOB,
		created_at     TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_facts_agent ON facts(agent_id);
	CREATE INDEX IF NOT EXISTS idx_facts_document ON facts(agent_id, document_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return goerr.Wrap(err, "failed to migrate schema")
	}
	return nil
}

func (r *SQLite) Close() error {
	r.profileCache.Close()
	return r.db.Close()
}

func (r *SQLite) GetProfile(ctx context.Context, id model.AgentID) (*model.AgentProfile, error) {
	if v, ok := r.profileCache.Get(string(id)); ok {
		if p, ok := v.(*model.AgentProfile); ok {
			return p.Clone(), nil
		}
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT agent_id, openness, conscientiousness, extraversion, agreeableness,
		       neuroticism, bias_strength, background, created_at, updated_at
		FROM agents WHERE agent_id = ?`, string(id))

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrNotFound, "profile not found", goerr.V("agent_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get profile", goerr.V("agent_id", id))
	}

	r.profileCache.Set(string(id), profile.Clone(), 1)
	return profile, nil
}

func (r *SQLite) PutProfile(ctx context.Context, profile *model.AgentProfile) error {
	p := profile.Personality
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, openness, conscientiousness, extraversion,
			agreeableness, neuroticism, bias_strength, background, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			openness = excluded.openness,
			conscientiousness = excluded.conscientiousness,
			extraversion = excluded.extraversion,
			agreeableness = excluded.agreeableness,
			neuroticism = excluded.neuroticism,
			bias_strength = excluded.bias_strength,
			background = excluded.background,
			updated_at = excluded.updated_at`,
		string(profile.AgentID), p.Openness, p.Conscientiousness, p.Extraversion,
		p.Agreeableness, p.Neuroticism, p.BiasStrength, profile.Background,
		profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to put profile", goerr.V("agent_id", profile.AgentID))
	}

	r.profileCache.Del(string(profile.AgentID))
	return nil
}

func (r *SQLite) ListProfiles(ctx context.Context) ([]*model.AgentProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_id, openness, conscientiousness, extraversion, agreeableness,
		       neuroticism, bias_strength, background, created_at, updated_at
		FROM agents`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list profiles")
	}
	defer rows.Close()

	var profiles []*model.AgentProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan profile")
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *SQLite) DeleteAgent(ctx context.Context, id model.AgentID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin delete transaction")
	}
	defer tx.Rollback()

	if r.vecDim > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM fact_vec WHERE rowid IN (SELECT rowid FROM facts WHERE agent_id = ?)`,
			string(id)); err != nil {
			return goerr.Wrap(err, "failed to delete fact vectors", goerr.V("agent_id", id))
		}
	}

	// FK cascade removes the fact rows with the profile
	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, string(id)); err != nil {
		return goerr.Wrap(err, "failed to delete agent", goerr.V("agent_id", id))
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit delete")
	}

	r.profileCache.Del(string(id))
	return nil
}

func (r *SQLite) PutFacts(ctx context.Context, facts []*model.MemoryFact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin insert transaction")
	}
	defer tx.Rollback()

	for _, fact := range facts {
		entities, err := json.Marshal(fact.Entities)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal entities", goerr.V("fact_id", fact.ID))
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO facts
				(id, agent_id, text, type, occurred_start, occurred_end,
				 entities, context, document_id, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(fact.ID), string(fact.AgentID), fact.Text, string(fact.Type),
			nullTime(fact.OccurredStart), nullTime(fact.OccurredEnd),
			string(entities), fact.Context, fact.DocumentID,
			encodeEmbedding(fact.Embedding), fact.CreatedAt)
		if err != nil {
			return goerr.Wrap(err, "failed to insert fact", goerr.V("fact_id", fact.ID))
		}

		inserted, err := res.RowsAffected()
		if err != nil || inserted == 0 {
			continue // duplicate from a retried batch
		}

		if r.vecAvailable && len(fact.Embedding) > 0 {
			if err := r.indexFact(ctx, tx, fact); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit facts")
	}
	return nil
}

// indexFact mirrors a fact embedding into the vec0 table, creating the
// table on first use once the embedding dimension is known.
func (r *SQLite) indexFact(ctx context.Context, tx *sql.Tx, fact *model.MemoryFact) error {
	r.vecMu.Lock()
	defer r.vecMu.Unlock()

	if r.vecDim == 0 {
		if err := r.ensureVecTable(tx, len(fact.Embedding)); err != nil {
			return err
		}
	}
	if r.vecDim != len(fact.Embedding) {
		// Dimension mismatch: leave this fact to the full-scan path
		return nil
	}

	var rowid int64
	if err := tx.QueryRowContext(ctx, `SELECT rowid FROM facts WHERE id = ?`, string(fact.ID)).Scan(&rowid); err != nil {
		return goerr.Wrap(err, "failed to resolve fact rowid", goerr.V("fact_id", fact.ID))
	}

	serialized, err := sqlite_vec.SerializeFloat32(normalizeVector(fact.Embedding))
	if err != nil {
		return goerr.Wrap(err, "failed to serialize embedding", goerr.V("fact_id", fact.ID))
	}

	// vec0 does not reliably support INSERT OR REPLACE; use DELETE + INSERT
	if _, err := tx.ExecContext(ctx, `DELETE FROM fact_vec WHERE rowid = ?`, rowid); err != nil {
		return goerr.Wrap(err, "failed to clear fact vector", goerr.V("fact_id", fact.ID))
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO fact_vec (rowid, embedding, fact_id) VALUES (?, ?, ?)`,
		rowid, serialized, string(fact.ID)); err != nil {
		return goerr.Wrap(err, "failed to index fact vector", goerr.V("fact_id", fact.ID))
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// ensureVecTable creates fact_vec for the given dimension, on the caller's
// transaction when one is open. Integer rowid (shared with facts.rowid)
// plus an auxiliary fact_id column keeps KNN queries working.
func (r *SQLite) ensureVecTable(db execer, dim int) error {
	if dim <= 0 {
		return nil
	}
	_, err := db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS fact_vec USING vec0(
			embedding float[%d],
			+fact_id TEXT
		)`, dim))
	if err != nil {
		return goerr.Wrap(err, "failed to create vec table", goerr.V("dim", dim))
	}
	r.vecDim = dim
	return nil
}

// initVecTableFromFacts restores vecDim after a restart by sampling one
// stored embedding.
func (r *SQLite) initVecTableFromFacts() error {
	var blob []byte
	err := r.db.QueryRow(`SELECT embedding FROM facts WHERE embedding IS NOT NULL AND LENGTH(embedding) > 0 LIMIT 1`).Scan(&blob)
	if err != nil {
		return nil // no facts with embeddings yet; defer to first PutFacts
	}
	return r.ensureVecTable(r.db, len(blob)/4)
}

func (r *SQLite) ListFacts(ctx context.Context, id model.AgentID) ([]*model.MemoryFact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, agent_id, text, type, occurred_start, occurred_end,
		       entities, context, document_id, embedding, created_at
		FROM facts WHERE agent_id = ? ORDER BY created_at, rowid`, string(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list facts", goerr.V("agent_id", id))
	}
	defer rows.Close()

	var facts []*model.MemoryFact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

func (r *SQLite) SearchSimilarFacts(ctx context.Context, id model.AgentID, embedding []float32, limit int) ([]*model.FactMatch, error) {
	if limit <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	if r.vecAvailable && r.vecDim == len(embedding) {
		matches, err := r.searchVec(ctx, id, embedding, limit)
		if err == nil {
			return matches, nil
		}
		// fall through to the scan on vec query failure
	}

	return r.searchScan(ctx, id, embedding, limit)
}

// searchVec runs a KNN query against vec0. The index is global across
// agents, so it oversamples, filters by owner, and widens the neighbor set
// until the agent has enough matches or the index is exhausted. Without the
// widening, a tenant whose vectors sit behind another tenant's dense
// cluster would silently lose matches.
func (r *SQLite) searchVec(ctx context.Context, id model.AgentID, embedding []float32, limit int) ([]*model.FactMatch, error) {
	serialized, err := sqlite_vec.SerializeFloat32(normalizeVector(embedding))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to serialize query embedding")
	}

	k := limit * 8
	if k < 64 {
		k = 64
	}

	for {
		matches, scanned, err := r.queryVec(ctx, id, serialized, limit, k)
		if err != nil {
			return nil, err
		}
		// Fewer scanned rows than k means the index holds nothing more
		if len(matches) >= limit || scanned < k {
			return matches, nil
		}
		k *= 4
	}
}

func (r *SQLite) queryVec(ctx context.Context, id model.AgentID, serialized []byte, limit, k int) ([]*model.FactMatch, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, f.agent_id, f.text, f.type, f.occurred_start, f.occurred_end,
		       f.entities, f.context, f.document_id, f.embedding, f.created_at,
		       v.distance
		FROM fact_vec v
		JOIN facts f ON f.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`, serialized, k)
	if err != nil {
		return nil, 0, goerr.Wrap(model.ErrRetrieval, "vec query failed", goerr.V("cause", err.Error()))
	}
	defer rows.Close()

	var matches []*model.FactMatch
	scanned := 0
	for rows.Next() {
		scanned++
		var distance float64
		fact, err := scanFactWith(rows, &distance)
		if err != nil {
			return nil, scanned, err
		}
		if fact.AgentID != id {
			continue
		}
		matches = append(matches, &model.FactMatch{
			Fact:       fact,
			Similarity: l2ToCosineSim(distance),
		})
		if len(matches) >= limit {
			break
		}
	}
	return matches, scanned, rows.Err()
}

// searchScan is the fallback: load the agent's embedded facts and rank by
// cosine similarity in process.
func (r *SQLite) searchScan(ctx context.Context, id model.AgentID, embedding []float32, limit int) ([]*model.FactMatch, error) {
	facts, err := r.ListFacts(ctx, id)
	if err != nil {
		return nil, err
	}

	var matches []*model.FactMatch
	for _, fact := range facts {
		if len(fact.Embedding) != len(embedding) {
			continue
		}
		matches = append(matches, &model.FactMatch{
			Fact:       fact,
			Similarity: cosineSimilarity(embedding, fact.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.AgentProfile, error) {
	var p model.AgentProfile
	var agentID string
	err := row.Scan(&agentID, &p.Personality.Openness, &p.Personality.Conscientiousness,
		&p.Personality.Extraversion, &p.Personality.Agreeableness,
		&p.Personality.Neuroticism, &p.Personality.BiasStrength,
		&p.Background, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.AgentID = model.AgentID(agentID)
	return &p, nil
}

func scanFact(row rowScanner) (*model.MemoryFact, error) {
	return scanFactWith(row)
}

func scanFactWith(row rowScanner, extra ...any) (*model.MemoryFact, error) {
	var fact model.MemoryFact
	var factID, agentID, factType string
	var start, end sql.NullTime
	var entities sql.NullString
	var blob []byte

	dest := []any{&factID, &agentID, &fact.Text, &factType, &start, &end,
		&entities, &fact.Context, &fact.DocumentID, &blob, &fact.CreatedAt}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, goerr.Wrap(err, "failed to scan fact")
	}

	fact.ID = model.FactID(factID)
	fact.AgentID = model.AgentID(agentID)
	fact.Type = model.FactType(factType)
	if start.Valid {
		t := start.Time
		fact.OccurredStart = &t
	}
	if end.Valid {
		t := end.Time
		fact.OccurredEnd = &t
	}
	if entities.Valid && entities.String != "" {
		if err := json.Unmarshal([]byte(entities.String), &fact.Entities); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal entities", goerr.V("fact_id", factID))
		}
	}
	fact.Embedding = decodeEmbedding(blob)
	return &fact, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// encodeEmbedding packs a float32 vector as little-endian bytes.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// normalizeVector returns a unit-length copy. Normalizing before storing in
// vec0 makes L2 distance equivalent to cosine distance.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// l2ToCosineSim converts an L2 distance on normalized vectors to cosine
// similarity: sim = 1 - d²/2.
func l2ToCosineSim(d float64) float64 {
	return 1.0 - (d*d)/2.0
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
