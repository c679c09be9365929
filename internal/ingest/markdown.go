// Package ingest handles importing reference documents into the
// retrieval index. Markdown documents are split into per-section
// chunks along heading boundaries, embedded, and stored.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/sync/errgroup"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/retrieval"
)

// embedConcurrency bounds parallel embedding calls so ingest does not
// starve interactive generation on the same Ollama instance.
const embedConcurrency = 4

// Chunk is one semantic unit extracted from a document.
type Chunk struct {
	Section string
	Content string
}

// Ingester imports markdown documents into the retrieval index.
type Ingester struct {
	index    *retrieval.Index
	embedder retrieval.Embedder
	logger   *slog.Logger
}

// New creates a markdown ingester. embedder may be nil; chunks are
// then stored without vectors and excluded from semantic search.
func New(index *retrieval.Index, embedder retrieval.Embedder, logger *slog.Logger) *Ingester {
	return &Ingester{
		index:    index,
		embedder: embedder,
		logger:   logger.With("component", "ingest"),
	}
}

// IngestFile reads and imports a markdown file. The base filename is
// used as the source key.
func (g *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	return g.IngestString(ctx, filepath.Base(path), string(data))
}

// IngestString imports markdown content under the given source key.
// Existing chunks for the source are replaced, enabling clean
// re-imports. Returns the number of chunks stored.
func (g *Ingester) IngestString(ctx context.Context, source, content string) (int, error) {
	chunks := ChunkMarkdown([]byte(content))
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := g.index.DeleteBySource(source); err != nil {
		return 0, fmt.Errorf("clear previous import: %w", err)
	}

	// Embed chunks in parallel, bounded; a failed embedding degrades
	// that chunk to unsearchable rather than failing the import.
	vectors := make([][]float32, len(chunks))
	if g.embedder != nil {
		grp, grpCtx := errgroup.WithContext(ctx)
		grp.SetLimit(embedConcurrency)
		for i, chunk := range chunks {
			i, chunk := i, chunk
			grp.Go(func() error {
				text := chunk.Section + ": " + chunk.Content
				vec, err := g.embedder.Generate(grpCtx, text)
				if err != nil {
					g.logger.Warn("embedding failed",
						"source", source,
						"section", chunk.Section,
						"error", err,
					)
					return nil
				}
				vectors[i] = vec
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			return 0, err
		}
	}

	count := 0
	for i, chunk := range chunks {
		err := g.index.Put(ctx, retrieval.Chunk{
			Source:  source,
			Section: chunk.Section,
			Content: chunk.Content,
		}, vectors[i])
		if err != nil {
			g.logger.Warn("failed to store chunk", "source", source, "error", err)
			continue
		}
		count++
	}

	g.logger.Info("document ingested", "source", source, "chunks", count)
	return count, nil
}

// ChunkMarkdown splits markdown into section chunks. A new chunk opens
// at every level-1 or level-2 heading; everything below (including
// deeper headings and fenced code) stays with its section. Content
// before the first heading forms a chunk with an empty section title.
func ChunkMarkdown(source []byte) []Chunk {
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(source))

	var chunks []Chunk
	var section string
	var content strings.Builder

	flush := func() {
		text := strings.TrimSpace(content.String())
		if text != "" {
			chunks = append(chunks, Chunk{Section: section, Content: text})
		}
		content.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if heading, ok := n.(*ast.Heading); ok && heading.Level <= 2 {
			flush()
			section = string(heading.Text(source))
			return ast.WalkSkipChildren, nil
		}

		// Leaf blocks carry the raw source lines; container blocks
		// (lists, quotes) delegate to their children.
		if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
			for i := 0; i < n.Lines().Len(); i++ {
				seg := n.Lines().At(i)
				content.Write(seg.Value(source))
			}
			content.WriteString("\n")
		}
		return ast.WalkContinue, nil
	})
	flush()

	return chunks
}
