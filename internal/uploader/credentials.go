package uploader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/vidshare/backend/internal/uploads"
)

// ServerCredentials asks the VidShare server's credential endpoint for a
// fresh credential on every call.
type ServerCredentials struct {
	// Endpoint is the absolute URL of GET /api/auth/imagekit-auth.
	Endpoint string
	// Token is sent as a bearer session token when set.
	Token  string
	Client *http.Client
}

func (s ServerCredentials) Credentials(ctx context.Context, req uploads.Request) (uploads.Credential, error) {
	endpoint, err := url.Parse(s.Endpoint)
	if err != nil {
		return uploads.Credential{}, &Error{Kind: KindInvalidRequest, Message: "invalid credential endpoint", Err: err}
	}
	query := endpoint.Query()
	if req.FileName != "" {
		query.Set("fileName", req.FileName)
	}
	if req.ContentType != "" {
		query.Set("contentType", req.ContentType)
	}
	if req.Folder != "" {
		query.Set("folder", req.Folder)
	}
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return uploads.Credential{}, &Error{Kind: KindInvalidRequest, Message: "invalid credential endpoint", Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if s.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return uploads.Credential{}, classify(ctx, "fetch upload credentials", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return uploads.Credential{}, err
	}

	var cred uploads.Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return uploads.Credential{}, &Error{Kind: KindServer, Message: "unreadable credential response", Err: err}
	}
	return cred, nil
}
