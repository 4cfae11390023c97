package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin JSON client for the medledger REST API. It keeps
// the access token obtained at login and sends it on every later call.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// VerificationResult mirrors the server's chain verification payload.
type VerificationResult struct {
	PatientID string      `json:"patient_id"`
	Kind      string      `json:"kind"`
	Checked   int         `json:"checked"`
	Valid     bool        `json:"valid"`
	Break     *ChainBreak `json:"break,omitempty"`
}

// ChainBreak pinpoints the first entry whose hashes no longer add up.
type ChainBreak struct {
	EntryID  string `json:"entry_id"`
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

// AuditEvent mirrors the server's audit trail payload.
type AuditEvent struct {
	ID          int64           `json:"id"`
	ActorID     *string         `json:"actor_id"`
	Action      string          `json:"action"`
	OriginAddr  string          `json:"origin_addr"`
	OriginAgent string          `json:"origin_agent"`
	Success     bool            `json:"success"`
	Detail      json.RawMessage `json:"detail"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Login authenticates with email and password and stores the access
// token for the calls that follow.
func (c *Client) Login(ctx context.Context, email, password string) error {
	in := map[string]string{"email": email, "password": password}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/login", in, &out); err != nil {
		return err
	}
	c.token = out.AccessToken
	return nil
}

// VerifyChain asks the server to walk one patient chain.
func (c *Client) VerifyChain(ctx context.Context, patientID, kind string) (*VerificationResult, error) {
	path := "/api/v1/admin/patients/" + url.PathEscape(patientID) + "/chain?kind=" + url.QueryEscape(kind)
	var out VerificationResult
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryAuditEvents fetches audit trail events matching the filters.
func (c *Client) QueryAuditEvents(ctx context.Context, q url.Values) ([]AuditEvent, error) {
	path := "/api/v1/admin/audit-events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []AuditEvent
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PresignUpload asks the server for an upload slot for the record's
// document and returns the storage key with the presigned URL.
func (c *Client) PresignUpload(ctx context.Context, recordID string) (key, uploadURL string, err error) {
	path := "/api/v1/records/" + url.PathEscape(recordID) + "/document"
	var out struct {
		DocumentKey string `json:"document_key"`
		UploadURL   string `json:"upload_url"`
	}
	if err := c.call(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", "", err
	}
	return out.DocumentKey, out.UploadURL, nil
}

// PresignDownload asks the server for a presigned URL of the record's
// stored document.
func (c *Client) PresignDownload(ctx context.Context, recordID string) (string, error) {
	path := "/api/v1/records/" + url.PathEscape(recordID) + "/document"
	var out struct {
		DownloadURL string `json:"download_url"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.DownloadURL, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError surfaces the server's {"error": ...} payload when present.
func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server: %s (%s)", payload.Error, resp.Status)
	}
	return fmt.Errorf("server: %s", resp.Status)
}
