package mwcompress_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pairbench/server/internal/api/middleware/mwcompress"
	"pairbench/server/pkg/compress"
)

func largeBody() string {
	return strings.Repeat("the quick brown fox jumps over the lazy dog\n", 64)
}

func echoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if len(body) == 0 {
			body = []byte(largeBody())
		}
		_, _ = w.Write(body)
	})
}

func TestResponseCompressedWhenAccepted(t *testing.T) {
	h := mwcompress.New(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "zstd", rec.Header().Get("Content-Encoding"), "zstd wins over gzip")
	plain, err := compress.Decompress(rec.Body.Bytes(), compress.CompressTypeZstd)
	require.NoError(t, err)
	require.Equal(t, largeBody(), string(plain))
}

func TestBrotliNegotiation(t *testing.T) {
	h := mwcompress.New(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "br;q=0.9, gzip;q=0.8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	plain, err := compress.Decompress(rec.Body.Bytes(), compress.CompressTypeBr)
	require.NoError(t, err)
	require.Equal(t, largeBody(), string(plain))
}

func TestSmallResponseLeftAlone(t *testing.T) {
	h := mwcompress.New(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.Equal(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNoAcceptEncodingPassesThrough(t *testing.T) {
	h := mwcompress.New(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.Equal(t, largeBody(), rec.Body.String())
}

func TestCompressedRequestBodyInflated(t *testing.T) {
	h := mwcompress.New(echoHandler(t))

	packed, err := compress.Compress([]byte(largeBody()), compress.CompressTypeGzip)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(packed))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, largeBody(), rec.Body.String())
}

func TestBogusContentEncodingRejected(t *testing.T) {
	h := mwcompress.New(echoHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("payload"))
	req.Header.Set("Content-Encoding", "snappy")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
