package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrDocumentNotFound is returned when a document lookup finds no row.
var ErrDocumentNotFound = errors.New("document not found")

// Document is the metadata row for an uploaded file. The bytes live in
// the object directory; Checksum is the SHA-256 hex of the stored bytes
// and backs the verification workflow.
type Document struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string    `gorm:"size:36;not null;index" json:"owner_id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Filename    string    `gorm:"size:255;not null" json:"filename"`
	MimeType    string    `gorm:"size:100" json:"mime_type"`
	Size        int64     `gorm:"not null" json:"size"`
	Checksum    string    `gorm:"size:64;not null" json:"checksum"`
	StoragePath string    `gorm:"size:500;not null" json:"-"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentStats aggregates a user's documents for the dashboard.
type DocumentStats struct {
	Count         int64 `json:"count"`
	TotalBytes    int64 `json:"total_bytes"`
	VerifiedCount int64 `json:"verified_count"`
}

// DocumentRepository provides access to document metadata storage.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create persists a new document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// FindByID retrieves a document by id.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return &doc, nil
}

// ListByOwner returns a user's documents, newest first.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	var docs []Document
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// MarkVerified records a successful checksum verification.
func (r *DocumentRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Update("verified_at", at)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to mark document verified: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// Stats aggregates count, total size and verified count for an owner.
func (r *DocumentRepository) Stats(ctx context.Context, ownerID string) (*DocumentStats, error) {
	var stats DocumentStats
	err := r.db.WithContext(ctx).
		Model(&Document{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size), 0) AS total_bytes, COUNT(verified_at) AS verified_count").
		Where("owner_id = ?", ownerID).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate document stats: %w", err)
	}
	return &stats, nil
}
