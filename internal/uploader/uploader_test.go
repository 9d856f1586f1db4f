package uploader

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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidshare/backend/internal/uploads"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func pngBytes(n int) []byte {
	buf := make([]byte, n)
	copy(buf, pngHeader)
	return buf
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	cred  func() uploads.Credential
	err   error
}

func (s *countingSource) Credentials(context.Context, uploads.Request) (uploads.Credential, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return uploads.Credential{}, s.err
	}
	return s.cred(), nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) record(v float64) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, kind, uerr.Kind, uerr.Error())
	assert.NotEmpty(t, uerr.Message)
}

func TestUploadRejectsInvalidFilesLocally(t *testing.T) {
	source := &countingSource{cred: func() uploads.Credential { return uploads.Credential{} }}
	u := &Uploader{Credentials: source}

	_, err := u.Upload(context.Background(), Policy{FileType: FileTypeImage, MaxSizeBytes: 10}, "big.png", bytes.NewReader(pngBytes(64)), 64)
	requireKind(t, err, KindInvalidFile)

	_, err = u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "notes.txt", bytes.NewReader([]byte("hello world")), 11)
	requireKind(t, err, KindInvalidFile)

	_, err = u.Upload(context.Background(), Policy{FileType: FileTypeVideo}, "pic.png", bytes.NewReader(pngBytes(64)), 64)
	requireKind(t, err, KindInvalidFile)

	_, err = u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "empty.png", bytes.NewReader(nil), 0)
	requireKind(t, err, KindInvalidFile)

	assert.Equal(t, 0, source.count(), "no credentials should be requested for invalid files")
	assert.False(t, u.Uploading())
}

func TestUploadImageKit(t *testing.T) {
	content := pngBytes(20_000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("signature") != "sig" || r.FormValue("token") == "" || r.FormValue("publicKey") != "pub" || r.FormValue("expire") != "1700000000" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"invalid signature"}`))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got, _ := io.ReadAll(file)
		if !bytes.Equal(got, content) {
			http.Error(w, "body mismatch", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"fileId": "f1",
			"name":   header.Filename,
			"url":    "https://ik.imagekit.io/demo/" + header.Filename,
		})
	}))
	defer srv.Close()

	tokens := 0
	source := &countingSource{cred: func() uploads.Credential {
		tokens++
		return uploads.Credential{
			Provider:  uploads.ProviderImageKit,
			Token:     "token-" + string(rune('a'+tokens)),
			Expire:    1700000000,
			Signature: "sig",
			PublicKey: "pub",
			UploadURL: srv.URL,
		}
	}}
	progress := &progressLog{}
	u := &Uploader{Credentials: source, OnProgress: progress.record}

	result, err := u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "thumb.png", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, "https://ik.imagekit.io/demo/thumb.png", result.URL)
	assert.Equal(t, "image/png", result.ContentType)

	values := progress.snapshot()
	require.NotEmpty(t, values)
	assert.Equal(t, 0.0, values[0])
	assert.Equal(t, 1.0, values[len(values)-1])
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1])
		assert.LessOrEqual(t, values[i], 1.0)
	}

	_, err = u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "thumb.png", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, 2, source.count(), "credentials must be fetched for every attempt")
	assert.False(t, u.Uploading())
}

func TestUploadPresigned(t *testing.T) {
	content := pngBytes(4096)
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.Header.Get("Content-Type") != "image/png" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	source := &countingSource{cred: func() uploads.Credential {
		return uploads.Credential{Provider: uploads.ProviderS3, UploadURL: srv.URL + "/media/a.png?X-Amz-Signature=x", Method: http.MethodPut, PublicURL: "https://cdn.example/a.png"}
	}}
	u := &Uploader{Credentials: source}

	result, err := u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "a.png", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", result.URL)
	assert.Equal(t, content, received)
}

func TestUploadFailureKinds(t *testing.T) {
	content := pngBytes(512)

	cases := []struct {
		name   string
		status int
		want   Kind
	}{
		{"serverError", http.StatusInternalServerError, KindServer},
		{"rejected", http.StatusForbidden, KindInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			u := &Uploader{Credentials: &countingSource{cred: func() uploads.Credential {
				return uploads.Credential{Provider: uploads.ProviderS3, UploadURL: srv.URL}
			}}}
			_, err := u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "a.png", bytes.NewReader(content), int64(len(content)))
			requireKind(t, err, tc.want)
			assert.False(t, u.Uploading())
		})
	}

	t.Run("network", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		u := &Uploader{Credentials: &countingSource{cred: func() uploads.Credential {
			return uploads.Credential{Provider: uploads.ProviderS3, UploadURL: addr}
		}}}
		_, err := u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "a.png", bytes.NewReader(content), int64(len(content)))
		requireKind(t, err, KindNetwork)
	})

	t.Run("credentialsRefused", func(t *testing.T) {
		u := &Uploader{Credentials: &countingSource{err: &Error{Kind: KindInvalidRequest, Message: "not authenticated"}}}
		_, err := u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "a.png", bytes.NewReader(content), int64(len(content)))
		requireKind(t, err, KindInvalidRequest)
	})
}

func TestUploadCancel(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	u := &Uploader{Credentials: &countingSource{cred: func() uploads.Credential {
		return uploads.Credential{Provider: uploads.ProviderS3, UploadURL: srv.URL}
	}}}

	go func() {
		<-started
		u.Cancel()
	}()

	content := pngBytes(1024)
	_, err := u.Upload(context.Background(), Policy{FileType: FileTypeImage}, "a.png", bytes.NewReader(content), int64(len(content)))
	requireKind(t, err, KindAborted)
	assert.False(t, u.Uploading())
}

func TestServerCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"not authenticated"}`))
			return
		}
		assert.Equal(t, "clip.mp4", r.URL.Query().Get("fileName"))
		_ = json.NewEncoder(w).Encode(uploads.Credential{Provider: uploads.ProviderImageKit, Token: "t", Expire: 42, Signature: "s"})
	}))
	defer srv.Close()

	cred, err := ServerCredentials{Endpoint: srv.URL, Token: "session-token"}.Credentials(context.Background(), uploads.Request{FileName: "clip.mp4"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), cred.Expire)

	_, err = ServerCredentials{Endpoint: srv.URL}.Credentials(context.Background(), uploads.Request{})
	requireKind(t, err, KindInvalidRequest)
	var uerr *Error
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "not authenticated", uerr.Message)
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.png")
	require.NoError(t, os.WriteFile(path, pngBytes(256), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	u := &Uploader{Credentials: &countingSource{cred: func() uploads.Credential {
		return uploads.Credential{Provider: uploads.ProviderS3, UploadURL: srv.URL + "/cover.png", PublicURL: "https://cdn/cover.png"}
	}}}
	result, err := u.UploadFile(context.Background(), Policy{FileType: FileTypeImage}, path)
	require.NoError(t, err)
	assert.Equal(t, int64(256), result.Size)

	_, err = u.UploadFile(context.Background(), Policy{FileType: FileTypeImage}, filepath.Join(dir, "missing.png"))
	requireKind(t, err, KindInvalidFile)
}

func TestPolicy(t *testing.T) {
	ft, err := ParseFileType("IMAGE")
	require.NoError(t, err)
	assert.Equal(t, FileTypeImage, ft)

	_, err = ParseFileType("audio")
	requireKind(t, err, KindInvalidRequest)

	assert.Equal(t, int64(DefaultMaxVideoBytes), Policy{FileType: FileTypeVideo}.Limit())
	assert.NoError(t, Policy{FileType: FileTypeVideo}.CheckContentType("video/mp4"))
	assert.Error(t, Policy{FileType: FileTypeVideo}.CheckContentType("image/png"))
}
