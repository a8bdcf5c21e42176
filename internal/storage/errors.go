package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Sentinel causes, matched with errors.Is through StorageError.
var (
	ErrNotFound     = errors.New("object not found")
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrTooLarge     = errors.New("object exceeds maximum size")
	ErrAccessDenied = errors.New("access denied")
)

// StorageError records the operation and key a provider call failed on.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsTooLarge(err error) bool   { return errors.Is(err, ErrTooLarge) }
func IsInvalidKey(err error) bool { return errors.Is(err, ErrInvalidKey) }

// validateKey accepts relative, already-clean slash paths. Keys come from
// AttachmentKey or from the /files/ route, so anything else is hostile.
func validateKey(key string) error {
	if key == "" ||
		strings.HasPrefix(key, "/") ||
		strings.ContainsAny(key, "\\\x00") ||
		path.Clean(key) != key ||
		key == ".." || strings.HasPrefix(key, "../") {
		return ErrInvalidKey
	}
	return nil
}
