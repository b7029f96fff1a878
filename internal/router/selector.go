// Package router implements optional vector-similarity tool selection.
// When enabled, the provider is shown a single vector-search tool plus the
// most recently used tools instead of the full tool list; the model calls
// the search tool to discover what else is available.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/tlongwell-block/goose/pkg/models"
)

// Strategy selects the tool routing mode.
type Strategy string

const (
	// StrategyDefault presents the full tool list to the provider.
	StrategyDefault Strategy = "default"

	// StrategyVector narrows the tool list via similarity search.
	StrategyVector Strategy = "vector"
)

// ParseStrategy maps a configuration value to a Strategy,
// case-insensitively. Anything other than "vector" is the default.
func ParseStrategy(value string) Strategy {
	if strings.EqualFold(strings.TrimSpace(value), string(StrategyVector)) {
		return StrategyVector
	}
	return StrategyDefault
}

// Embedder produces the embedding for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Selector is the tool selection index consulted by the agent.
type Selector interface {
	// SelectTools runs a similarity search. Arguments carry a "query"
	// string and an optional "k" result count.
	SelectTools(ctx context.Context, arguments json.RawMessage) ([]models.Content, error)

	// IndexTools adds or replaces an extension's tools in the index.
	IndexTools(ctx context.Context, extensionName string, tools []models.Tool) error

	// RemoveTools drops an extension's tools from the index.
	RemoveTools(ctx context.Context, extensionName string) error

	// RecordToolCall notes that a tool was called, feeding the
	// recently-used list.
	RecordToolCall(name string)

	// RecentToolCalls returns up to limit unique tool names, most recent
	// first.
	RecentToolCalls(limit int) []string
}

// defaultSearchLimit bounds vector search results when the caller does not
// ask for a specific k.
const defaultSearchLimit = 5

// VectorSelector is a chromem-go backed Selector.
type VectorSelector struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu     sync.Mutex
	recent []string // most recent first, unique
	byExt  map[string][]string
}

// NewVectorSelector creates a selector embedding tool descriptions with
// the given embedder. The collection name is unique per selector.
func NewVectorSelector(embedder Embedder) (*VectorSelector, error) {
	db := chromem.NewDB()
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.CreateCollection("tools-"+uuid.NewString(), nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool index: %w", err)
	}
	return &VectorSelector{
		db:         db,
		collection: collection,
		byExt:      make(map[string][]string),
	}, nil
}

// SelectTools runs a similarity search over the indexed tools.
func (s *VectorSelector) SelectTools(ctx context.Context, arguments json.RawMessage) ([]models.Content, error) {
	var params struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.Unmarshal(arguments, &params); err != nil || params.Query == "" {
		return nil, models.NewExecutionError("Missing 'query' parameter")
	}
	if params.K <= 0 {
		params.K = defaultSearchLimit
	}
	if count := s.collection.Count(); params.K > count {
		params.K = count
	}
	if params.K == 0 {
		return []models.Content{models.NewTextContent("No tools are indexed.")}, nil
	}

	results, err := s.collection.Query(ctx, params.Query, params.K, nil, nil)
	if err != nil {
		return nil, models.ExecutionErrorf("vector search failed: %v", err)
	}

	var lines []string
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Metadata["tool"], r.Content))
	}
	return []models.Content{models.NewTextContent(strings.Join(lines, "\n"))}, nil
}

// IndexTools adds or replaces an extension's tools in the index.
func (s *VectorSelector) IndexTools(ctx context.Context, extensionName string, tools []models.Tool) error {
	if err := s.RemoveTools(ctx, extensionName); err != nil {
		return err
	}

	ids := make([]string, 0, len(tools))
	for _, tool := range tools {
		doc := chromem.Document{
			ID:      extensionName + "/" + tool.Name,
			Content: tool.Name + " " + tool.Description,
			Metadata: map[string]string{
				"tool":      tool.Name,
				"extension": extensionName,
			},
		}
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to index tool %s: %w", tool.Name, err)
		}
		ids = append(ids, doc.ID)
	}

	s.mu.Lock()
	s.byExt[extensionName] = ids
	s.mu.Unlock()
	return nil
}

// RemoveTools drops an extension's tools from the index.
func (s *VectorSelector) RemoveTools(ctx context.Context, extensionName string) error {
	s.mu.Lock()
	ids := s.byExt[extensionName]
	delete(s.byExt, extensionName)
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to remove tools for %s: %w", extensionName, err)
	}
	return nil
}

// RecordToolCall notes a tool call for the recently-used list.
func (s *VectorSelector) RecordToolCall(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.recent {
		if existing == name {
			s.recent = append(s.recent[:i], s.recent[i+1:]...)
			break
		}
	}
	s.recent = append([]string{name}, s.recent...)

	const maxRecent = 100
	if len(s.recent) > maxRecent {
		s.recent = s.recent[:maxRecent]
	}
}

// RecentToolCalls returns up to limit unique tool names, most recent first.
func (s *VectorSelector) RecentToolCalls(limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]string, limit)
	copy(out, s.recent[:limit])
	return out
}
