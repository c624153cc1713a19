// Package chunk defines the two-tier records produced by ingestion: parents
// hold the context returned to the answer generator, children are the small
// embedded units searched at query time.
package chunk

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Parent is a large, never-embedded span of a document.
type Parent struct {
	ID           string
	Content      string
	DocumentName string
}

// Child is a small span derived from exactly one parent.
type Child struct {
	Index     int // position within the document, 0-based and contiguous
	Text      string
	ParentID  string
	FileName  string
	Embedding []float32 // nil until the embedding gateway has run
}

// ScoredChild is a search hit.
type ScoredChild struct {
	Child
	Score float32
}

// NewID returns a time-ordered UUID string.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewParent builds a parent with a fresh id.
func NewParent(content, documentName string) Parent {
	return Parent{ID: NewID(), Content: content, DocumentName: documentName}
}

// NewChild builds the child at index derived from p.
func NewChild(index int, text string, p Parent) Child {
	return Child{Index: index, Text: text, ParentID: p.ID, FileName: p.DocumentName}
}

// Validate reports missing required fields.
func (p Parent) Validate() error {
	if p.ID == "" {
		return errors.New("parent id is required")
	}
	if p.DocumentName == "" {
		return fmt.Errorf("parent %s: document name is required", p.ID)
	}
	return nil
}

// Validate reports missing required fields. The embedding is not checked.
func (c Child) Validate() error {
	if c.ParentID == "" {
		return fmt.Errorf("child %d: parent id is required", c.Index)
	}
	if c.FileName == "" {
		return fmt.Errorf("child %d: file name is required", c.Index)
	}
	if c.Index < 0 {
		return fmt.Errorf("child index %d is negative", c.Index)
	}
	return nil
}

// ValidateEmbedded is Validate plus a non-empty embedding, the shape required
// before a child may be persisted.
func (c Child) ValidateEmbedded() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("child %d of %s: embedding is missing", c.Index, c.FileName)
	}
	return nil
}

// Key identifies a child across re-ingestions of the same document.
func (c Child) Key() string {
	return fmt.Sprintf("%s:%d", c.FileName, c.Index)
}
