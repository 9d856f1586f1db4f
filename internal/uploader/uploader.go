package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vidshare/backend/internal/uploads"
)

// sniffLen is how much of the file is read up front for content detection.
const sniffLen = 3072

// CredentialSource fetches a fresh upload credential.
type CredentialSource interface {
	Credentials(ctx context.Context, req uploads.Request) (uploads.Credential, error)
}

// Result describes the stored file.
type Result struct {
	URL          string `json:"url"`
	FileID       string `json:"fileId,omitempty"`
	Name         string `json:"name,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
}

// Uploader streams files to the media host. One upload runs at a time.
type Uploader struct {
	Credentials CredentialSource
	Client      *http.Client
	// OnProgress receives the transferred fraction in [0,1].
	OnProgress func(fraction float64)
	// Folder is passed to the media host as the destination folder.
	Folder string

	mu        sync.Mutex
	uploading bool
	cancel    context.CancelFunc
}

// Uploading reports whether a transfer is in flight.
func (u *Uploader) Uploading() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploading
}

// Cancel aborts the in-flight transfer, if any.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		u.cancel()
	}
}

// UploadFile opens path and uploads it under policy.
func (u *Uploader) UploadFile(ctx context.Context, policy Policy, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidFile, Message: "cannot open file", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidFile, Message: "cannot stat file", Err: err}
	}
	return u.Upload(ctx, policy, filepath.Base(path), f, info.Size())
}

// Upload validates the file against policy, requests a credential and
// transfers size bytes from r to the media host.
func (u *Uploader) Upload(ctx context.Context, policy Policy, name string, r io.Reader, size int64) (Result, error) {
	if err := policy.CheckSize(size); err != nil {
		return Result{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, &Error{Kind: KindInvalidFile, Message: "cannot read file", Err: err}
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()
	if err := policy.CheckContentType(contentType); err != nil {
		return Result{}, err
	}
	body := io.MultiReader(bytes.NewReader(head), r)

	ctx, done, err := u.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer done()

	if u.Credentials == nil {
		return Result{}, &Error{Kind: KindInvalidRequest, Message: "no credential source configured"}
	}
	cred, err := u.Credentials.Credentials(ctx, uploads.Request{FileName: name, ContentType: contentType, Folder: u.Folder})
	if err != nil {
		return Result{}, classify(ctx, "fetch upload credentials", err)
	}

	u.progress(0)
	progress := &progressReader{r: body, total: size, report: u.progress}

	var result Result
	switch cred.Provider {
	case uploads.ProviderImageKit:
		result, err = u.sendImageKit(ctx, cred, name, contentType, progress)
	case uploads.ProviderS3:
		result, err = u.sendPresigned(ctx, cred, contentType, progress, size)
	default:
		err = &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf("unsupported upload provider %q", cred.Provider)}
	}
	if err != nil {
		return Result{}, err
	}

	result.ContentType = contentType
	result.Size = size
	u.progress(1)
	return result, nil
}

func (u *Uploader) begin(ctx context.Context) (context.Context, func(), error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.uploading {
		return nil, nil, &Error{Kind: KindInvalidRequest, Message: "an upload is already in progress"}
	}

	ctx, cancel := context.WithCancel(ctx)
	u.uploading = true
	u.cancel = cancel

	return ctx, func() {
		cancel()
		u.mu.Lock()
		u.uploading = false
		u.cancel = nil
		u.mu.Unlock()
	}, nil
}

func (u *Uploader) sendImageKit(ctx context.Context, cred uploads.Credential, name, contentType string, body io.Reader) (Result, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		fields := [][2]string{
			{"fileName", name},
			{"publicKey", cred.PublicKey},
			{"signature", cred.Signature},
			{"expire", strconv.FormatInt(cred.Expire, 10)},
			{"token", cred.Token},
			{"useUniqueFileName", "true"},
		}
		if u.Folder != "" {
			fields = append(fields, [2]string{"folder", u.Folder})
		}
		for _, f := range fields {
			if err := form.WriteField(f[0], f[1]); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := form.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.UploadURL, pr)
	if err != nil {
		pr.Close()
		return Result{}, &Error{Kind: KindInvalidRequest, Message: "invalid upload url", Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.client().Do(req)
	pr.Close()
	if err != nil {
		return Result{}, classify(ctx, "upload to media host", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return Result{}, err
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, &Error{Kind: KindServer, Message: "unreadable media host response", Err: err}
	}
	if out.URL == "" {
		return Result{}, &Error{Kind: KindServer, Message: "media host returned no url"}
	}
	return out, nil
}

func (u *Uploader) sendPresigned(ctx context.Context, cred uploads.Credential, contentType string, body io.Reader, size int64) (Result, error) {
	method := cred.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, cred.UploadURL, body)
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidRequest, Message: "invalid upload url", Err: err}
	}
	req.ContentLength = size
	for name, value := range cred.Headers {
		req.Header.Set(name, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := u.client().Do(req)
	if err != nil {
		return Result{}, classify(ctx, "upload to object store", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return Result{}, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	location := cred.PublicURL
	if location == "" {
		if parsed, err := url.Parse(cred.UploadURL); err == nil {
			parsed.RawQuery = ""
			location = parsed.String()
		}
	}
	return Result{URL: location, Name: cred.Key}, nil
}

func (u *Uploader) client() *http.Client {
	if u.Client != nil {
		return u.Client
	}
	return http.DefaultClient
}

func (u *Uploader) progress(fraction float64) {
	if u.OnProgress != nil {
		u.OnProgress(fraction)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	msg := readMessage(resp.Body)
	if msg == "" {
		msg = resp.Status
	}
	if resp.StatusCode >= 500 {
		return &Error{Kind: KindServer, Message: msg}
	}
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return string(bytes.TrimSpace(raw))
}

// classify maps transport failures onto upload error kinds.
func classify(ctx context.Context, what string, err error) error {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindAborted, Message: "upload cancelled", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: what + " failed", Err: err}
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		fraction := float64(p.read) / float64(p.total)
		if fraction > 1 {
			fraction = 1
		}
		p.report(fraction)
	}
	return n, err
}
