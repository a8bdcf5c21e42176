package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Attachment kinds as stored on messages.
const (
	KindImage = "image"
	KindPDF   = "pdf"
	KindVideo = "video"
)

var attachmentTypes = map[string]string{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"image/webp":      KindImage,
	"image/gif":       KindImage,
	"image/heic":      KindImage,
	"application/pdf": KindPDF,
	"video/mp4":       KindVideo,
	"video/quicktime": KindVideo,
	"video/webm":      KindVideo,
}

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
}

func baseType(contentType string) string {
	return strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
}

// AttachmentKind returns the attachment kind of a content type, or "" if it
// may not be attached to a message.
func AttachmentKind(contentType string) string {
	return attachmentTypes[baseType(contentType)]
}

// ExtensionFor returns the file extension used for a content type.
func ExtensionFor(contentType string) string {
	if ext, ok := extensions[baseType(contentType)]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(baseType(contentType)); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// DetectContentType sniffs the first 512 bytes of head, falling back to the
// filename's extension when sniffing only finds generic bytes.
func DetectContentType(filename string, head []byte) string {
	sniffed := http.DetectContentType(head)
	if baseType(sniffed) != "application/octet-stream" {
		return baseType(sniffed)
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return baseType(byExt)
	}
	return "application/octet-stream"
}

// SniffReader reads up to 512 bytes from r for DetectContentType and returns
// a reader that replays them before the rest of r.
func SniffReader(r io.Reader) ([]byte, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, nil, err
	}
	head = head[:n]
	return head, io.MultiReader(strings.NewReader(string(head)), r), nil
}
