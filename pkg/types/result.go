package types

import (
	"strings"
	"time"
)

// Message is a single turn of a conversation
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Source attributes a chunk included in a context window to its document
type Source struct {
	DocumentID     string  `json:"document_id"`
	Filename       string  `json:"filename"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ContextWindow is the bounded evidence and dialogue bundle handed to a
// downstream answer-generation step.
//
// TotalTokens never exceeds the budget the window was assembled for, and every
// Source corresponds to a chunk actually present in DocumentContext.
type ContextWindow struct {
	DocumentContext     string   `json:"document_context"`
	ConversationContext string   `json:"conversation_context"`
	TotalTokens         int      `json:"total_tokens"`
	WasTruncated        bool     `json:"was_truncated"`
	Sources             []Source `json:"sources"`
}

// Empty reports whether neither evidence nor dialogue made it into the window
func (w *ContextWindow) Empty() bool {
	return w.DocumentContext == "" && w.ConversationContext == ""
}

// Scope restricts retrieval to one owner and, optionally, an allow-list of documents
type Scope struct {
	UserID      string   `json:"user_id"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Validate checks that the scope names an owner and holds no blank document IDs
func (s *Scope) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return NewValidationError("scope.user_id", "must not be empty")
	}
	for _, id := range s.DocumentIDs {
		if strings.TrimSpace(id) == "" {
			return NewValidationError("scope.document_ids", "must not contain empty ids")
		}
	}
	return nil
}

// Allows reports whether a document passes the scope's allow-list
func (s *Scope) Allows(documentID string) bool {
	if len(s.DocumentIDs) == 0 {
		return true
	}
	for _, id := range s.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}
