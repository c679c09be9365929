// Package retrieval provides the reference-document index backing the
// agent's document search. Chunks and their embeddings live in SQLite;
// search is brute-force cosine similarity over all stored vectors,
// which is fine at the scale of a personal reference library.
package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/embeddings"
)

// Chunk is one semantic unit of an ingested document.
type Chunk struct {
	ID      int64
	Source  string // originating document (path or name)
	Section string
	Content string
}

// Embedder generates an embedding vector for text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Index is a SQLite-backed chunk and vector store.
type Index struct {
	db       *sql.DB
	embedder Embedder
}

// NewIndex opens (creating if needed) a retrieval index at dbPath.
// embedder may be nil, in which case Search returns nothing and Put
// stores chunks without vectors.
func NewIndex(dbPath string, embedder Embedder) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open retrieval database: %w", err)
	}

	idx := &Index{db: db, embedder: embedder}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate retrieval schema: %w", err)
	}
	return idx, nil
}

// Close closes the database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		source    TEXT NOT NULL,
		section   TEXT,
		content   TEXT NOT NULL,
		embedding BLOB,
		added_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
	`
	_, err := idx.db.Exec(schema)
	return err
}

// DeleteBySource removes all chunks from a source, enabling clean
// re-imports.
func (idx *Index) DeleteBySource(source string) error {
	_, err := idx.db.Exec(`DELETE FROM chunks WHERE source = ?`, source)
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", source, err)
	}
	return nil
}

// Put stores one chunk with its embedding. A nil embedding is stored
// as NULL and the chunk is excluded from semantic search.
func (idx *Index) Put(ctx context.Context, c Chunk, embedding []float32) error {
	var blob []byte
	if embedding != nil {
		blob = encodeVector(embedding)
	}
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO chunks (source, section, content, embedding, added_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Source, c.Section, c.Content, blob, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Search returns the contents of the k chunks most similar to the
// query. With no embedder or no embedded chunks it returns an empty
// result and no error.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]string, error) {
	if idx.embedder == nil {
		return nil, nil
	}

	queryVec, err := idx.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx,
		`SELECT content, embedding FROM chunks WHERE embedding IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var contents []string
	var vectors [][]float32
	for rows.Next() {
		var content string
		var blob []byte
		if err := rows.Scan(&content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			continue // skip undecodable vectors
		}
		contents = append(contents, content)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	top := embeddings.TopK(queryVec, vectors, k)
	results := make([]string, 0, len(top))
	for _, i := range top {
		results = append(results, contents[i])
	}
	return results, nil
}

// encodeVector packs a float32 slice into little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 slice.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
