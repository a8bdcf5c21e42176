package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: dir, BaseURL: "http://localhost:8080/files/"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s, dir
}

func TestLocalStorage_PutGetDelete(t *testing.T) {
	s, dir := newTestLocal(t)
	ctx := context.Background()
	key := "attachments/u1/2026/10/photo.png"

	require.NoError(t, s.Put(ctx, key, strings.NewReader("png-bytes"), PutOptions{ContentType: "image/png", MaxSize: 64}))

	_, err := os.Stat(filepath.Join(dir, "attachments", "u1", "2026", "10", "photo.png"))
	require.NoError(t, err)

	rc, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "image/png", info.ContentType)

	require.NoError(t, s.Delete(ctx, key))
	_, _, err = s.Get(ctx, key)
	assert.True(t, IsNotFound(err))

	// Deleting again is fine.
	assert.NoError(t, s.Delete(ctx, key))
}

func TestLocalStorage_TooLargeLeavesNothing(t *testing.T) {
	s, dir := newTestLocal(t)
	key := "attachments/u1/big.pdf"

	err := s.Put(context.Background(), key, strings.NewReader(strings.Repeat("x", 11)), PutOptions{MaxSize: 10})
	require.Error(t, err)
	assert.True(t, IsTooLarge(err))

	entries, err := os.ReadDir(filepath.Join(dir, "attachments", "u1"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary upload should be removed")

	// Exactly at the limit is accepted.
	require.NoError(t, s.Put(context.Background(), key, strings.NewReader(strings.Repeat("x", 10)), PutOptions{MaxSize: 10}))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, _ := newTestLocal(t)
	ctx := context.Background()

	for _, key := range []string{"", "..", "../etc/passwd", "attachments/../../x", "/abs/path", "a//b", "a/./b", `dir\\x`, "a\x00b"} {
		t.Run(fmt.Sprintf("%q", key), func(t *testing.T) {
			err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{})
			assert.True(t, IsInvalidKey(err))
			_, _, err = s.Get(ctx, key)
			assert.True(t, IsInvalidKey(err))
		})
	}
}

func TestLocalStorage_URL(t *testing.T) {
	s, _ := newTestLocal(t)
	u, err := s.URL(context.Background(), "attachments/u1/a.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/attachments/u1/a.pdf", u)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "gcs"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestNewR2Storage_RequiresConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewR2Storage(R2Config{BucketName: "b"}, logger)
	assert.Error(t, err)

	s, err := NewR2Storage(R2Config{AccountID: "acc", BucketName: "b", AccessKeyID: "k", SecretAccessKey: "s", PublicURL: "https://cdn.example.com/"}, logger)
	require.NoError(t, err)

	u, err := s.URL(context.Background(), "attachments/u1/a.png", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/attachments/u1/a.png", u)
}

func TestMapS3Error(t *testing.T) {
	assert.ErrorIs(t, mapS3Error(&smithy.GenericAPIError{Code: "NoSuchKey"}), ErrNotFound)
	assert.ErrorIs(t, mapS3Error(&smithy.GenericAPIError{Code: "AccessDenied"}), ErrAccessDenied)

	other := errors.New("connection reset")
	assert.ErrorIs(t, mapS3Error(other), other)
}

func TestAttachmentKind(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               KindImage,
		"image/PNG":                KindImage,
		"application/pdf":          KindPDF,
		"video/mp4; codecs=avc1":   KindVideo,
		"text/html":                "",
		"application/octet-stream": "",
	}
	for ct, want := range tests {
		assert.Equal(t, want, AttachmentKind(ct), ct)
	}
}

func TestDetectContentType(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%âãÏÓ\n")
	assert.Equal(t, "application/pdf", DetectContentType("plan.bin", pdf))

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "image/png", DetectContentType("x", png))

	// Unrecognised bytes fall back to the extension.
	assert.Equal(t, "application/pdf", DetectContentType("plan.pdf", []byte{0x00, 0x01, 0x02}))
}

func TestSniffReader_ReplaysHead(t *testing.T) {
	body := strings.Repeat("a", 600)
	head, r, err := SniffReader(strings.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, head, 512)

	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, string(all))
}

func TestAttachmentKey(t *testing.T) {
	user := uuid.MustParse("5b0d4b8e-7a43-4c1e-9a55-3f7a0f9e2d11")
	key := AttachmentKey(user, "application/pdf", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))

	assert.True(t, strings.HasPrefix(key, "attachments/"+user.String()+"/2026/03/"), key)
	assert.True(t, strings.HasSuffix(key, ".pdf"), key)
	assert.NoError(t, validateKey(key))
}
