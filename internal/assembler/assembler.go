package assembler

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/dshills/ragcontext-mcp/pkg/types"
)

// Default assembly parameters
const (
	DefaultDocumentShare  = 0.7
	DefaultMinRelevance   = 0.5
	DefaultRecentMessages = 6
	DefaultCharsPerToken  = 4
)

const entrySeparator = "\n\n"

// Config controls how a token budget is split and filled
type Config struct {
	// DocumentShare is the fraction of the budget reserved for document evidence
	DocumentShare float64 `json:"document_share" koanf:"document_share"`
	// MinRelevance drops chunks scoring below it
	MinRelevance float64 `json:"min_relevance" koanf:"min_relevance"`
	// RecentMessages is how many trailing messages prioritizeRecent keeps
	RecentMessages int `json:"recent_messages" koanf:"recent_messages"`
	CharsPerToken  int `json:"chars_per_token" koanf:"chars_per_token"`
}

// DefaultConfig returns the default split: 70% documents, 30% history
func DefaultConfig() Config {
	return Config{
		DocumentShare:  DefaultDocumentShare,
		MinRelevance:   DefaultMinRelevance,
		RecentMessages: DefaultRecentMessages,
		CharsPerToken:  DefaultCharsPerToken,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if math.IsNaN(c.DocumentShare) || c.DocumentShare <= 0 || c.DocumentShare > 1 {
		return types.NewValidationError("document_share", "must be in (0, 1]")
	}
	if math.IsNaN(c.MinRelevance) || math.IsInf(c.MinRelevance, 0) {
		return types.NewValidationError("min_relevance", "must be a finite number")
	}
	if c.RecentMessages < 0 {
		return types.NewValidationError("recent_messages", "must not be negative")
	}
	if c.CharsPerToken <= 0 {
		return types.NewValidationError("chars_per_token", "must be positive")
	}
	return nil
}

// Assembler packs ranked chunks and conversation history into a ContextWindow
type Assembler struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Assembler. A zero DocumentShare, RecentMessages or
// CharsPerToken takes its default; MinRelevance is used as given.
func New(cfg Config, logger *slog.Logger) (*Assembler, error) {
	def := DefaultConfig()
	if cfg.DocumentShare == 0 {
		cfg.DocumentShare = def.DocumentShare
	}
	if cfg.RecentMessages == 0 {
		cfg.RecentMessages = def.RecentMessages
	}
	if cfg.CharsPerToken == 0 {
		cfg.CharsPerToken = def.CharsPerToken
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{cfg: cfg, logger: logger}, nil
}

// Config returns the effective configuration
func (a *Assembler) Config() Config {
	return a.cfg
}

// EstimateTokens approximates the token cost of text
func (a *Assembler) EstimateTokens(text string) int {
	return len(text) / a.cfg.CharsPerToken
}

// Assemble builds a context window of at most maxTokens.
//
// Chunks are ranked by score and those under the relevance floor are dropped.
// Evidence is added in rank order until the first entry that does not fit the
// document share. History fills what the evidence left over, newest message
// first, and stops at the first message that does not fit; the kept lines are
// emitted oldest first. WasTruncated reports any chunk or message left out
// for lack of space.
func (a *Assembler) Assemble(chunks []types.ScoredChunk, history []types.Message, maxTokens int, prioritizeRecent bool) types.ContextWindow {
	return a.AssembleWithFloor(chunks, history, maxTokens, prioritizeRecent, a.cfg.MinRelevance)
}

// AssembleWithFloor is Assemble with a per-call relevance floor
func (a *Assembler) AssembleWithFloor(chunks []types.ScoredChunk, history []types.Message, maxTokens int, prioritizeRecent bool, minRelevance float64) types.ContextWindow {
	window := types.ContextWindow{Sources: []types.Source{}}

	ranked := a.rank(chunks, minRelevance)
	if prioritizeRecent && len(history) > a.cfg.RecentMessages {
		history = history[len(history)-a.cfg.RecentMessages:]
	}

	if maxTokens <= 0 {
		window.WasTruncated = len(ranked) > 0 || len(history) > 0
		return window
	}

	docBudget := int(math.Floor(float64(maxTokens) * a.cfg.DocumentShare))
	docTokens := a.fillDocuments(&window, ranked, docBudget)
	convTokens := a.fillConversation(&window, history, maxTokens-docTokens)
	window.TotalTokens = docTokens + convTokens

	if window.WasTruncated {
		a.logger.Debug("context_truncated",
			slog.Int("max_tokens", maxTokens),
			slog.Int("total_tokens", window.TotalTokens),
			slog.Int("chunks_offered", len(ranked)),
			slog.Int("chunks_included", len(window.Sources)))
	}
	return window
}

func (a *Assembler) rank(chunks []types.ScoredChunk, minRelevance float64) []types.ScoredChunk {
	ranked := make([]types.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score < minRelevance || c.Content == "" {
			continue
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func (a *Assembler) fillDocuments(window *types.ContextWindow, ranked []types.ScoredChunk, budget int) int {
	var b strings.Builder
	tokens := 0
	for i := range ranked {
		c := &ranked[i]
		entry := fmt.Sprintf("[%d] %s\n%s", len(window.Sources)+1, c.SourceLabel(), c.Content)
		candidate := entry
		if b.Len() > 0 {
			candidate = b.String() + entrySeparator + entry
		}
		cost := a.EstimateTokens(candidate)
		if cost > budget {
			window.WasTruncated = true
			break
		}

		b.Reset()
		b.WriteString(candidate)
		tokens = cost
		window.Sources = append(window.Sources, types.Source{
			DocumentID:     c.DocumentID,
			Filename:       c.Metadata.Filename,
			RelevanceScore: c.Score,
		})
	}
	window.DocumentContext = b.String()
	return tokens
}

func (a *Assembler) fillConversation(window *types.ContextWindow, history []types.Message, budget int) int {
	lines := make([]string, 0, len(history))
	tokens := 0
	for i := len(history) - 1; i >= 0; i-- {
		line := history[i].Role + ": " + history[i].Content
		// lines are collected newest first; the joined cost is order-independent
		cost := a.EstimateTokens(strings.Join(append(lines, line), "\n"))
		if cost > budget {
			window.WasTruncated = true
			break
		}
		lines = append(lines, line)
		tokens = cost
	}

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	window.ConversationContext = strings.Join(lines, "\n")
	return tokens
}
