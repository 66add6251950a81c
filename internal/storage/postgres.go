package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresConfig holds connection details for PostgreSQL.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string

	// EmbeddingDim is the width of the pgvector column; it must match the
	// embedding model in use.
	EmbeddingDim int
}

func (c PostgresConfig) connString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Embedder turns description text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
}

// PostgresStore keeps the description history in Postgres with a pgvector
// embedding per record so past observations can be searched semantically.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger

	// sourceIDs memoizes source name -> row id per connection lifetime.
	sourceIDs syncedIDs
}

// NewPostgresStore connects the pool and verifies the database is
// reachable. embedder may be nil, in which case records are stored without
// vectors.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, config PostgresConfig, embedder Embedder) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, config.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		pool:     pool,
		embedder: embedder,
		logger:   logger,
		sourceIDs: syncedIDs{
			ids: make(map[string]int),
		},
	}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Save stores one description record, generating its embedding when an
// embedder is configured. Embedding failures degrade to a vector-less row.
func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	sourceID, err := s.getOrCreateSource(ctx, rec.Source)
	if err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, rec.Description)
		if err != nil {
			s.logger.Warn("failed to generate embedding, storing without vector", "error", err)
		} else {
			v := pgvector.NewVector(vec)
			embedding = &v
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO frame_descriptions
		(source_id, frame_number, ts, description, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sourceID, rec.Frame, rec.Timestamp, rec.Description, embedding, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store description: %w", err)
	}
	return nil
}

func (s *PostgresStore) getOrCreateSource(ctx context.Context, name string) (int, error) {
	if id, ok := s.sourceIDs.get(name); ok {
		return id, nil
	}

	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM sources WHERE name = $1", name).Scan(&id)
	if err == nil {
		s.sourceIDs.put(name, id)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("error checking for existing source: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO sources (name, created_at) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		name, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create source entry: %w", err)
	}

	s.sourceIDs.put(name, id)
	return id, nil
}

// SimilarDescription is one vector-search hit.
type SimilarDescription struct {
	Source      string
	Frame       int
	Timestamp   float64
	Description string
	Similarity  float64
}

// SearchSimilar finds past descriptions semantically close to query.
func (s *PostgresStore) SearchSimilar(ctx context.Context, query string, limit int) ([]SimilarDescription, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("similarity search requires an embedder")
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT src.name, fd.frame_number, fd.ts, fd.description,
		1 - (fd.embedding <=> $1) AS similarity
		FROM frame_descriptions fd
		JOIN sources src ON fd.source_id = src.id
		WHERE fd.embedding IS NOT NULL
		ORDER BY fd.embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search descriptions: %w", err)
	}
	defer rows.Close()

	var results []SimilarDescription
	for rows.Next() {
		var r SimilarDescription
		if err := rows.Scan(&r.Source, &r.Frame, &r.Timestamp, &r.Description, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// InitSchema creates the history schema if it does not exist.
func InitSchema(ctx context.Context, config PostgresConfig) error {
	conn, err := pgx.Connect(ctx, config.connString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	dim := config.EmbeddingDim
	if dim <= 0 {
		dim = 768
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS sources (
            id SERIAL PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(name)
        );

        CREATE TABLE IF NOT EXISTS frame_descriptions (
            id SERIAL PRIMARY KEY,
            source_id INTEGER REFERENCES sources(id) ON DELETE CASCADE,
            frame_number INTEGER NOT NULL,
            ts DOUBLE PRECISION NOT NULL,
            description TEXT NOT NULL,
            embedding vector(%d),
            created_at TIMESTAMPTZ NOT NULL
        );
    `, dim))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frame_descriptions_source_id ON frame_descriptions(source_id);
        CREATE INDEX IF NOT EXISTS idx_frame_descriptions_embedding ON frame_descriptions USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}

// syncedIDs is a small mutex-guarded name -> id memo.
type syncedIDs struct {
	mu  sync.Mutex
	ids map[string]int
}

func (m *syncedIDs) get(name string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[name]
	return id, ok
}

func (m *syncedIDs) put(name string, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[name] = id
}
