// Package uploads issues short-lived credentials that let a browser or the
// upload client send a file straight to the media host.
package uploads

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidshare/backend/internal/storage"
)

const (
	// ProviderImageKit marks credentials for the ImageKit upload API.
	ProviderImageKit = "imagekit"
	// ProviderS3 marks presigned PUT credentials for an S3 bucket.
	ProviderS3 = "s3"

	// DefaultTTL is how long a credential stays valid when none is configured.
	DefaultTTL = 30 * time.Minute
	// ImageKit refuses expiries an hour or more in the future.
	maxImageKitTTL = 59 * time.Minute
)

// ErrNotConfigured indicates no media host keys are configured.
var ErrNotConfigured = errors.New("upload credentials not configured")

// Request describes the file the caller is about to upload.
type Request struct {
	FileName    string
	ContentType string
	Folder      string
}

// Credential is handed to the uploader and consumed by exactly one upload.
type Credential struct {
	Provider  string            `json:"provider"`
	Token     string            `json:"token,omitempty"`
	Expire    int64             `json:"expire"`
	Signature string            `json:"signature,omitempty"`
	PublicKey string            `json:"publicKey,omitempty"`
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Key       string            `json:"key,omitempty"`
	PublicURL string            `json:"publicUrl,omitempty"`
}

// Issuer mints upload credentials.
type Issuer interface {
	Issue(ctx context.Context, req Request) (Credential, error)
}

// ImageKitIssuer signs ImageKit client-side upload parameters.
type ImageKitIssuer struct {
	PublicKey  string
	PrivateKey string
	UploadURL  string
	TTL        time.Duration
	NowFunc    func() time.Time
}

// Issue returns a fresh token, its expiry and the HMAC-SHA1 signature over both.
func (i ImageKitIssuer) Issue(_ context.Context, _ Request) (Credential, error) {
	if strings.TrimSpace(i.PrivateKey) == "" {
		return Credential{}, ErrNotConfigured
	}

	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > maxImageKitTTL {
		ttl = maxImageKitTTL
	}

	token := uuid.NewString()
	expire := i.now().Add(ttl).Unix()

	return Credential{
		Provider:  ProviderImageKit,
		Token:     token,
		Expire:    expire,
		Signature: Sign(i.PrivateKey, token, expire),
		PublicKey: i.PublicKey,
		UploadURL: i.UploadURL,
		Method:    "POST",
	}, nil
}

func (i ImageKitIssuer) now() time.Time {
	if i.NowFunc != nil {
		return i.NowFunc()
	}
	return time.Now()
}

// Sign computes the ImageKit upload signature for token and expire.
func Sign(privateKey, token string, expire int64) string {
	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(token + strconv.FormatInt(expire, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Presigner produces presigned PUT URLs. *storage.S3Storage satisfies it.
type Presigner interface {
	Presign(ctx context.Context, key, contentType string, ttl time.Duration) (storage.PresignedUpload, error)
}

// S3Issuer hands out presigned PUT URLs for a fresh object key per request.
type S3Issuer struct {
	Store Presigner
	TTL   time.Duration
}

// Issue presigns a PUT for a new key derived from the requested file name.
func (i S3Issuer) Issue(ctx context.Context, req Request) (Credential, error) {
	if i.Store == nil {
		return Credential{}, ErrNotConfigured
	}

	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	folder := req.Folder
	if folder == "" {
		folder = "uploads"
	}

	upload, err := i.Store.Presign(ctx, storage.NewKey(folder, req.FileName), req.ContentType, ttl)
	if err != nil {
		return Credential{}, fmt.Errorf("presign upload: %w", err)
	}

	return Credential{
		Provider:  ProviderS3,
		Expire:    upload.ExpiresAt.Unix(),
		UploadURL: upload.URL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		Key:       upload.Key,
		PublicURL: upload.PublicURL,
	}, nil
}
