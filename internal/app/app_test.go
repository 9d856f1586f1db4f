package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vidshare/backend/internal/uploader"
	"github.com/vidshare/backend/internal/uploads"
)

func TestRunRejectsUnknownCommands(t *testing.T) {
	if err := Run(context.Background(), nil); err == nil {
		t.Fatal("expected error without command")
	}
	if err := Run(context.Background(), []string{"seed"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error got %v", err)
	}
}

func TestUploadCommand(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{1}, 512)...)
	path := filepath.Join(t.TempDir(), "cover.png")
	if err := os.WriteFile(path, png, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	var stored []byte
	var authHeader string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/auth/imagekit-auth", func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(uploads.Credential{
			Provider:  uploads.ProviderS3,
			UploadURL: srv.URL + "/bucket/images/cover.png?X-Amz-Signature=abc",
			Method:    http.MethodPut,
			Key:       "images/cover.png",
			PublicURL: "https://cdn.example/images/cover.png",
		})
	})
	mux.HandleFunc("/bucket/images/cover.png", func(w http.ResponseWriter, r *http.Request) {
		stored, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	var stdout, stderr bytes.Buffer
	err := upload(context.Background(), []string{"-server", srv.URL + "/", "-token", "tok", "-type", "image", "-quiet", path}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("upload: %v (stderr %s)", err, stderr.String())
	}

	if authHeader != "Bearer tok" {
		t.Fatalf("expected bearer token got %q", authHeader)
	}
	if !bytes.Equal(stored, png) {
		t.Fatal("uploaded body differs from file")
	}

	var result uploader.Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if result.URL != "https://cdn.example/images/cover.png" || result.ContentType != "image/png" || result.Size != int64(len(png)) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestUploadCommandRejectsBadInvocations(t *testing.T) {
	var out bytes.Buffer
	if err := upload(context.Background(), nil, &out, &out); err == nil {
		t.Fatal("expected usage error without a file")
	}
	if err := upload(context.Background(), []string{"-type", "audio", "file.mp3"}, &out, &out); err == nil {
		t.Fatal("expected error for unsupported type")
	}

	text := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(text, []byte("just text"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	err := upload(context.Background(), []string{"-server", "http://127.0.0.1:1", "-quiet", text}, &out, &out)
	var uerr *uploader.Error
	if !errors.As(err, &uerr) || uerr.Kind != uploader.KindInvalidFile {
		t.Fatalf("expected invalid-file error got %v", err)
	}
}
