package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vidshare/backend/internal/config"
)

func newTestStorage(t *testing.T) *S3Storage {
	t.Helper()
	cfg := config.ObjectStoreConfig{Bucket: "media", Region: "us-east-1", Endpoint: "http://localhost:9000"}
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
		}),
	})
	return newS3Storage(client, cfg)
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	if _, err := NewS3Storage(context.Background(), config.ObjectStoreConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured got %v", err)
	}
}

func TestPresign(t *testing.T) {
	store := newTestStorage(t)

	upload, err := store.Presign(context.Background(), "/videos/clip.mp4", "video/mp4", 15*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}

	if upload.Method != "PUT" {
		t.Fatalf("expected PUT got %s", upload.Method)
	}
	u, err := url.Parse(upload.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "localhost:9000" || u.Path != "/media/videos/clip.mp4" {
		t.Fatalf("unexpected presigned target %s", upload.URL)
	}
	if u.Query().Get("X-Amz-Signature") == "" || u.Query().Get("X-Amz-Expires") != "900" {
		t.Fatalf("expected signed query got %s", u.RawQuery)
	}
	if upload.Key != "videos/clip.mp4" {
		t.Fatalf("unexpected key %q", upload.Key)
	}
	if upload.PublicURL != "http://localhost:9000/media/videos/clip.mp4" {
		t.Fatalf("unexpected public url %q", upload.PublicURL)
	}

	if _, err := store.Presign(context.Background(), "/", "", time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestNewKey(t *testing.T) {
	key := NewKey("/videos/", "My Clip.MP4")
	if !strings.HasPrefix(key, "videos/") || !strings.HasSuffix(key, ".mp4") {
		t.Fatalf("unexpected key %q", key)
	}
	if NewKey("videos", "a.mp4") == NewKey("videos", "a.mp4") {
		t.Fatal("expected keys to be unique")
	}
	if k := NewKey("", `C:\tmp\thumb.jpg`); strings.Contains(k, "/") || !strings.HasSuffix(k, ".jpg") {
		t.Fatalf("unexpected key %q", k)
	}
}
