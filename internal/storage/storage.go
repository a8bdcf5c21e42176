// Package storage stores chat attachments.
//
// Two providers implement Storage: LocalStorage writes to the filesystem for
// development, R2Storage writes to Cloudflare R2 through its S3 API.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Storage defines the interface for attachment storage.
type Storage interface {
	// Put stores data at key. Data larger than opts.MaxSize fails with
	// ErrTooLarge and leaves nothing behind.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get opens the object at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for the object. A zero expires asks for a permanent
	// public URL where the provider has one.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	ContentType string
	MaxSize     int64 // 0 means no limit
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Provider names accepted by Config.Provider.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Local    LocalConfig
	R2       R2Config
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string

	// BaseURL is the public URL prefix files are served under,
	// e.g. "http://localhost:8080/files".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's public domain. Without it every URL is
	// presigned.
	PublicURL string
}

// New creates the configured provider.
func New(cfg Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Provider {
	case ProviderLocal, "":
		return NewLocalStorage(cfg.Local, logger)
	case ProviderR2:
		return NewR2Storage(cfg.R2, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// AttachmentKey generates the key for a user's chat attachment.
// Format: attachments/{userID}/{yyyy}/{mm}/{uuid}{ext}
func AttachmentKey(userID uuid.UUID, contentType string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("attachments/%s/%04d/%02d/%s%s",
		userID, now.Year(), int(now.Month()), uuid.New(), ExtensionFor(contentType))
}
