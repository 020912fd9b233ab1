// Package mwcompress negotiates response compression from Accept-Encoding
// and inflates compressed request bodies.
package mwcompress

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"pairbench/server/pkg/compress"
)

// minSize is the smallest response body worth compressing. Tiny JSON acks
// gain nothing and the headers cost more than the savings.
const minSize = 1 << 10

// preference orders the encodings we offer, best ratio first.
var preference = []struct {
	name string
	algo compress.CompressType
}{
	{"zstd", compress.CompressTypeZstd},
	{"br", compress.CompressTypeBr},
	{"gzip", compress.CompressTypeGzip},
}

type bufferedWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(status int) {
	w.status = status
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}

// New wraps a handler with content negotiation. Responses are buffered, so
// this never wraps streaming endpoints; the websocket path bypasses it.
func New(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if enc := r.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
			body, err := io.ReadAll(r.Body)
			if err == nil {
				body, err = compress.DecompressWithContentEncodeStr(body, enc)
			}
			if err != nil {
				http.Error(w, "unreadable request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.Header.Del("Content-Encoding")
			r.ContentLength = int64(len(body))
		}

		name, algo, ok := negotiate(r.Header.Get("Accept-Encoding"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		buf := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(buf, r)

		out := buf.body.Bytes()
		if len(out) >= minSize {
			if packed, err := compress.Compress(out, algo); err == nil && len(packed) < len(out) {
				w.Header().Set("Content-Encoding", name)
				out = packed
			}
		}
		w.WriteHeader(buf.status)
		_, _ = w.Write(out)
	})
}

func negotiate(acceptEncoding string) (string, compress.CompressType, bool) {
	if acceptEncoding == "" {
		return "", compress.CompressTypeNone, false
	}
	offered := make(map[string]bool)
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		offered[strings.TrimSpace(name)] = true
	}
	for _, p := range preference {
		if offered[p.name] || offered["*"] {
			return p.name, p.algo, true
		}
	}
	return "", compress.CompressTypeNone, false
}
