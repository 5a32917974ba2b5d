package collab

import (
	"sort"
	"strings"
	"time"
)

// DocumentState is the authoritative content and version of one shared
// document.
type DocumentState struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	ContentType  string    `json:"content_type"`
	Version      uint64    `json:"version"`
	LastEditedBy string    `json:"last_edited_by,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Conflict carries the authoritative state back to a writer whose expected
// version did not match. It is an expected outcome of concurrent editing,
// never a fatal error.
type Conflict struct {
	DocumentID     string
	CurrentVersion uint64
	CurrentContent string
}

// DocumentStore arbitrates concurrent edits with a per-document version
// counter. A write is a compare-and-swap: it commits only when the caller's
// expected version equals the stored one. The store is owned by a single hub
// and accessed only from its mailbox loop.
type DocumentStore struct {
	docs map[string]*DocumentState
}

// NewDocumentStore constructs an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*DocumentState)}
}

// Load installs a persisted document without bumping its version.
func (s *DocumentStore) Load(doc DocumentState) {
	if strings.TrimSpace(doc.ID) == "" {
		return
	}
	cpy := doc
	s.docs[doc.ID] = &cpy
}

// Get returns a copy of the document, if present.
func (s *DocumentStore) Get(id string) (DocumentState, bool) {
	doc, ok := s.docs[id]
	if !ok {
		return DocumentState{}, false
	}
	return *doc, true
}

// List returns copies of every document, ordered by title then ID.
func (s *DocumentStore) List() []DocumentState {
	out := make([]DocumentState, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Write applies an optimistic write. On version match the content is
// replaced, the version increments by exactly one and the new state is
// returned. On mismatch the stored content is left untouched and a Conflict
// with the current state is returned instead. A write against an unknown
// document with expected version 0 creates it.
func (s *DocumentStore) Write(id string, expected uint64, content, title, contentType, editorID string, now time.Time) (DocumentState, *Conflict) {
	doc, ok := s.docs[id]
	if !ok {
		if expected != 0 {
			return DocumentState{}, &Conflict{DocumentID: id, CurrentVersion: 0}
		}
		doc = &DocumentState{
			ID:          id,
			Title:       strings.TrimSpace(title),
			ContentType: contentType,
		}
		if doc.ContentType == "" {
			doc.ContentType = "text"
		}
		s.docs[id] = doc
	}

	if doc.Version != expected {
		return DocumentState{}, &Conflict{
			DocumentID:     id,
			CurrentVersion: doc.Version,
			CurrentContent: doc.Content,
		}
	}

	doc.Content = content
	doc.Version++
	doc.LastEditedBy = editorID
	doc.UpdatedAt = now
	if title = strings.TrimSpace(title); title != "" {
		doc.Title = title
	}
	if contentType != "" {
		doc.ContentType = contentType
	}

	return *doc, nil
}

// Len reports how many documents the store holds.
func (s *DocumentStore) Len() int {
	return len(s.docs)
}
