// Package uploader sends a local file straight to the media host using
// credentials fetched from the VidShare server before every attempt.
package uploader

import (
	"fmt"
	"strings"
)

// FileType selects which media an upload accepts.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
)

// Default size caps applied when a Policy leaves MaxSizeBytes at zero.
const (
	DefaultMaxImageBytes = 10 * 1024 * 1024
	DefaultMaxVideoBytes = 100 * 1024 * 1024
)

// Policy bounds what a single upload may contain. It is checked locally
// before any network call and again by the server-side relay.
type Policy struct {
	FileType     FileType
	MaxSizeBytes int64
}

// ParseFileType maps "image" or "video" to a FileType.
func ParseFileType(s string) (FileType, error) {
	switch FileType(strings.ToLower(strings.TrimSpace(s))) {
	case FileTypeImage:
		return FileTypeImage, nil
	case FileTypeVideo, "":
		return FileTypeVideo, nil
	}
	return "", &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("unsupported file type %q", s)}
}

// Limit returns the effective size cap.
func (p Policy) Limit() int64 {
	if p.MaxSizeBytes > 0 {
		return p.MaxSizeBytes
	}
	if p.FileType == FileTypeImage {
		return DefaultMaxImageBytes
	}
	return DefaultMaxVideoBytes
}

// CheckSize rejects empty files and files over the limit.
func (p Policy) CheckSize(size int64) error {
	if size <= 0 {
		return &Error{Kind: KindInvalidFile, Message: "file is empty"}
	}
	if limit := p.Limit(); size > limit {
		return &Error{Kind: KindInvalidFile, Message: fmt.Sprintf("file is %d bytes, the limit is %d", size, limit)}
	}
	return nil
}

// CheckContentType rejects media types outside the policy's family.
func (p Policy) CheckContentType(contentType string) error {
	family := FileTypeVideo
	if p.FileType == FileTypeImage {
		family = FileTypeImage
	}
	if !strings.HasPrefix(strings.ToLower(contentType), string(family)+"/") {
		return &Error{Kind: KindInvalidFile, Message: fmt.Sprintf("expected a %s file, got %s", family, contentType)}
	}
	return nil
}
