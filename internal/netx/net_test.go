package netx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadToPresignedURL(t *testing.T) {
	file := []byte("%PDF-1.4 discharge summary")

	t.Run("puts the document as an octet stream", func(t *testing.T) {
		var gotMethod, gotCT string
		var gotBody []byte

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		err := UploadToPresignedURL(context.Background(), ts.URL+"/records/2025/3/1/doc?X-Amz-Signature=abc", file)
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, gotMethod)
		assert.Equal(t, "application/octet-stream", gotCT)
		assert.Equal(t, file, gotBody)
	})

	t.Run("surfaces a rejected upload", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("signature expired"))
		}))
		defer ts.Close()

		err := UploadToPresignedURL(context.Background(), ts.URL, file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upload failed: 403")
		assert.Contains(t, err.Error(), "signature expired")
	})

	t.Run("propagates network errors", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		err := UploadToPresignedURL(context.Background(), ts.URL, file)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "upload failed")
	})
}

func TestDownloadFromPresignedURL(t *testing.T) {
	doc := []byte("%PDF-1.4 lab results")

	t.Run("returns the document body", func(t *testing.T) {
		var gotMethod string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			_, _ = w.Write(doc)
		}))
		defer ts.Close()

		got, err := DownloadFromPresignedURL(context.Background(), ts.URL+"/records/2025/3/1/doc?X-Amz-Signature=abc")
		require.NoError(t, err)
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Equal(t, doc, got)
	})

	t.Run("surfaces a rejected download", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("signature expired"))
		}))
		defer ts.Close()

		_, err := DownloadFromPresignedURL(context.Background(), ts.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "download failed: 403")
		assert.Contains(t, err.Error(), "signature expired")
	})
}
