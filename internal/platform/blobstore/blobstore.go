// Package blobstore stores medical-record attachments. Uploads are checked
// against the sniffed content type, capped in size and saved under a
// generated name; the client file name is kept as display metadata only.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyFile          = errors.New("file is empty")
)

// MaxFileSize is the maximum allowed blob size in bytes (5 MB).
const MaxFileSize = 5 * 1024 * 1024

// allowedTypes maps the accepted sniffed MIME types to the extension used
// for the stored name.
var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Upload(ctx context.Context, fileName string, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

// prepare reads and validates an upload and assigns its generated id.
func prepare(fileName string, content io.Reader) (*BlobMetadata, []byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return nil, nil, ErrFileTooLarge
	}

	contentType, ext, ok := detect(data)
	if !ok {
		return nil, nil, ErrInvalidContentType
	}

	sum := sha256.Sum256(data)
	meta := &BlobMetadata{
		ID:          uuid.New().String() + ext,
		FileName:    DisplayName(fileName),
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC(),
	}
	return meta, data, nil
}

func detect(data []byte) (string, string, bool) {
	m := mimetype.Detect(data)
	for ct, ext := range allowedTypes {
		if m.Is(ct) {
			return ct, ext, true
		}
	}
	return "", "", false
}

// validID reports whether id has the shape of a generated blob name.
func validID(id string) bool {
	ext := filepath.Ext(id)
	known := false
	for _, e := range allowedTypes {
		if e == ext {
			known = true
			break
		}
	}
	if !known {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(id, ext))
	return err == nil
}

// maxDisplayName is the byte limit of a stored display name.
const maxDisplayName = 255

// DisplayName reduces a client supplied file name to a safe base name for
// display and Content-Disposition headers.
func DisplayName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) || r == '"' || r == '/' {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == ".." {
		return "attachment"
	}
	if len(out) > maxDisplayName {
		n := maxDisplayName
		for n > 0 && !utf8.RuneStart(out[n]) {
			n--
		}
		out = out[:n]
	}
	return out
}

// InMemoryBlobStore is a thread-safe BlobStore for tests and development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryBlobStore) Upload(_ context.Context, fileName string, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(fileName, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = data
	s.mu.Unlock()

	return meta, nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}
