// Package storage persists rule documents and the chat log.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/bunbetsu/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStore persists indexed documents. Vectors live in the vector index; this store keeps
// content and metadata so the corpus can be listed, removed by source and rebuilt.
type DocumentStore interface {
	UpsertDocuments(ctx context.Context, docs []*models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocuments(ctx context.Context, ids []string) (map[string]*models.Document, error)
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	ListSources(ctx context.Context) (map[string]int, error)
	CountDocuments(ctx context.Context) (int, error)
	DeleteBySource(ctx context.Context, source string) ([]string, error)
	Reset(ctx context.Context) error
	Close() error
}

// ChatLog records answered questions.
type ChatLog interface {
	AppendChatLog(ctx context.Context, entry *models.ChatLogEntry) error
	RecentChatLog(ctx context.Context, limit int) ([]*models.ChatLogEntry, error)
}
