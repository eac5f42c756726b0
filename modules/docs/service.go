package docs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/example/docshare/domain/share"
	"github.com/example/docshare/modules/store"
)

// MaxUploadBytes caps a single upload.
const MaxUploadBytes = 50 << 20

var (
	// ErrUploadTooLarge is returned when an upload exceeds the cap.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
	// ErrChecksumMismatch is returned when stored bytes no longer
	// match the recorded checksum.
	ErrChecksumMismatch = errors.New("stored content does not match checksum")
)

// DocumentStore is the metadata persistence the service needs.
type DocumentStore interface {
	Create(ctx context.Context, doc *store.Document) error
	FindByID(ctx context.Context, id string) (*store.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]store.Document, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context, ownerID string) (*store.DocumentStats, error)
}

// Announcer posts a document notice into a room's stream. Optional.
type Announcer interface {
	Publish(ctx context.Context, msg share.Message) (*share.Message, error)
}

// Service stores uploaded files on disk with their SHA-256 recorded,
// and verifies them on demand.
type Service struct {
	docs      DocumentStore
	announcer Announcer
	dir       string
}

// NewService creates the document service writing files under dir.
func NewService(docs DocumentStore, announcer Announcer, dir string) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Service{docs: docs, announcer: announcer, dir: dir}, nil
}

// Upload streams content to disk, hashing as it writes, and records
// the metadata row. The file is removed again if anything fails after
// it was written.
func (s *Service) Upload(ctx context.Context, ownerID, title, filename, mimeType string, content io.Reader) (*store.Document, error) {
	if err := share.ValidateTitle(title); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	hash := sha256.New()
	size, err := io.Copy(f, io.TeeReader(io.LimitReader(content, MaxUploadBytes+1), hash))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if size > MaxUploadBytes {
		os.Remove(path)
		return nil, ErrUploadTooLarge
	}

	doc := &store.Document{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Filename:    filepath.Base(filename),
		MimeType:    mimeType,
		Size:        size,
		Checksum:    hex.EncodeToString(hash.Sum(nil)),
		StoragePath: path,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		os.Remove(path)
		return nil, err
	}
	return doc, nil
}

// Announce posts a document notice into a room. The notice rides the
// same relay stream as chat, so every subscriber sees it in order.
func (s *Service) Announce(ctx context.Context, roomID, senderID, documentID string) (*share.Message, error) {
	if s.announcer == nil {
		return nil, errors.New("no announcer configured")
	}
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.announcer.Publish(ctx, share.Message{
		RoomID:   roomID,
		SenderID: &senderID,
		Content:  fmt.Sprintf("shared document %q (%s)", doc.Title, doc.ID),
		Kind:     share.KindDocument,
	})
}

// Open returns a reader over a stored document's bytes.
func (s *Service) Open(ctx context.Context, documentID string) (*store.Document, io.ReadCloser, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	return doc, f, nil
}

// Verify re-hashes the stored bytes against the recorded checksum and
// stamps the row on success.
func (s *Service) Verify(ctx context.Context, documentID string) (*store.Document, error) {
	doc, f, err := s.Open(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sum, err := Checksum(f)
	if err != nil {
		return nil, err
	}
	if sum != doc.Checksum {
		return nil, ErrChecksumMismatch
	}

	now := time.Now().UTC()
	if err := s.docs.MarkVerified(ctx, doc.ID, now); err != nil {
		return nil, err
	}
	doc.VerifiedAt = &now
	return doc, nil
}

// Matches reports whether externally supplied content hashes to the
// document's recorded checksum. Used to check a local copy against the
// stored original without uploading it.
func (s *Service) Matches(ctx context.Context, documentID string, content io.Reader) (bool, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return false, err
	}
	sum, err := Checksum(content)
	if err != nil {
		return false, err
	}
	return sum == doc.Checksum, nil
}

// List returns an owner's documents, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]store.Document, error) {
	return s.docs.ListByOwner(ctx, ownerID)
}

// Stats aggregates an owner's documents.
func (s *Service) Stats(ctx context.Context, ownerID string) (*store.DocumentStats, error) {
	return s.docs.Stats(ctx, ownerID)
}
