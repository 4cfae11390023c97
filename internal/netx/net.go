// Package netx holds small HTTP helpers used by the operator tool.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadToPresignedURL PUTs a document to a presigned object-storage
// URL. The server hands these out for record attachments, so the body
// is always sent as an opaque octet stream.
func UploadToPresignedURL(ctx context.Context, url string, file []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(file))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// DownloadFromPresignedURL GETs a document from a presigned
// object-storage URL and returns its contents.
func DownloadFromPresignedURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}
	return io.ReadAll(resp.Body)
}
