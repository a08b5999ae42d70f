package httpx

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const (
	contentEncodingGzip = "gzip"
	acceptEncodingGzip  = "gzip"
)

func TestCompression(t *testing.T) {
	testContent := `{"items":[` + strings.Repeat(`{"name":"passkey"},`, 500) + `{}]}`

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(testContent))
	})

	tests := []struct {
		name           string
		acceptEncoding string
		expectGzip     bool
		level          int
	}{
		{"client accepts gzip", "gzip, deflate", true, 6},
		{"client does not accept gzip", "deflate", false, 6},
		{"no accept-encoding header", "", false, 6},
		{"compression level 1 (fastest)", acceptEncodingGzip, true, 1},
		{"compression level 9 (best)", acceptEncodingGzip, true, 9},
		{"default level", acceptEncodingGzip, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := runCompressionTest(t, compressionTestConfig{
				Handler:        handler,
				Level:          tt.level,
				AcceptEncoding: tt.acceptEncoding,
			})
			defer resp.Body.Close()

			if tt.expectGzip {
				verifyGzipResponse(t, resp, testContent)
			} else {
				verifyUncompressedResponse(t, resp, testContent)
			}
		})
	}
}

type compressionTestConfig struct {
	Handler        http.Handler
	Level          int
	MinSize        int
	AcceptEncoding string
}

func runCompressionTest(t *testing.T, cfg compressionTestConfig) *http.Response {
	t.Helper()

	wrappedHandler := Compression(CompressionConfig{Level: cfg.Level, MinSize: cfg.MinSize})(cfg.Handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cfg.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", cfg.AcceptEncoding)
	}

	rec := httptest.NewRecorder()
	wrappedHandler.ServeHTTP(rec, req)

	return rec.Result()
}

func verifyGzipResponse(t *testing.T, resp *http.Response, expectedContent string) {
	t.Helper()

	if resp.Header.Get("Content-Encoding") != contentEncodingGzip {
		t.Errorf("expected Content-Encoding: %s, got: %s", contentEncodingGzip, resp.Header.Get("Content-Encoding"))
	}
	if resp.Header.Get("Content-Length") != "" {
		t.Errorf("expected no Content-Length header, got: %s", resp.Header.Get("Content-Length"))
	}
	if resp.Header.Get("Vary") != "Accept-Encoding" {
		t.Errorf("expected Vary: Accept-Encoding, got: %s", resp.Header.Get("Vary"))
	}

	gr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("failed to create gzip reader: %v", err)
	}
	defer gr.Close()

	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("failed to read decompressed body: %v", err)
	}
	if string(body) != expectedContent {
		t.Errorf("decompressed content mismatch")
	}
}

func verifyUncompressedResponse(t *testing.T, resp *http.Response, expectedContent string) {
	t.Helper()

	if resp.Header.Get("Content-Encoding") == contentEncodingGzip {
		t.Errorf("expected no gzip encoding, got Content-Encoding: %s", contentEncodingGzip)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != expectedContent {
		t.Errorf("content mismatch")
	}
}

func TestCompressionWithStatusCodes(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		expectGzip  bool
		contentType string
		writeBody   bool
	}{
		{"200 OK with JSON", http.StatusOK, true, "application/json", true},
		{"404 Not Found with JSON", http.StatusNotFound, true, "application/json", true},
		{"503 with JSON", http.StatusServiceUnavailable, true, "application/json", true},
		{"204 No Content", http.StatusNoContent, false, "", false},
		{"304 Not Modified", http.StatusNotModified, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.statusCode)
				if tt.writeBody {
					_, _ = w.Write([]byte(`{"ok":true}`))
				}
			})

			resp := runCompressionTest(t, compressionTestConfig{Handler: handler, Level: 6, AcceptEncoding: acceptEncodingGzip})
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("expected status code %d, got %d", tt.statusCode, resp.StatusCode)
			}
			gotEncoding := resp.Header.Get("Content-Encoding")
			if tt.expectGzip && gotEncoding != contentEncodingGzip {
				t.Errorf("expected Content-Encoding: %s, got: %s", contentEncodingGzip, gotEncoding)
			}
			if !tt.expectGzip && gotEncoding == contentEncodingGzip {
				t.Errorf("expected no gzip encoding for status %d", tt.statusCode)
			}
		})
	}
}

func TestCompressionContentTypeFiltering(t *testing.T) {
	tests := []struct {
		contentType string
		expectGzip  bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/problem+json", true},
		{"text/plain", true},
		{"image/png", false},
		{"application/octet-stream", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("test content"))
			})

			resp := runCompressionTest(t, compressionTestConfig{Handler: handler, Level: 6, AcceptEncoding: acceptEncodingGzip})
			defer resp.Body.Close()

			gotEncoding := resp.Header.Get("Content-Encoding")
			if tt.expectGzip && gotEncoding != contentEncodingGzip {
				t.Errorf("expected gzip for %s, got: %q", tt.contentType, gotEncoding)
			}
			if !tt.expectGzip && gotEncoding == contentEncodingGzip {
				t.Errorf("expected no gzip encoding for %s", tt.contentType)
			}
		})
	}
}

func TestCompressionMinSize(t *testing.T) {
	small := `{"ok":true}`
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(small))
	})

	resp := runCompressionTest(t, compressionTestConfig{
		Handler:        handler,
		Level:          6,
		MinSize:        1024,
		AcceptEncoding: acceptEncodingGzip,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	verifyUncompressedResponse(t, resp, small)

	big := strings.Repeat("x", 2048)
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(big[:512]))
		_, _ = w.Write([]byte(big[512:]))
	})
	resp = runCompressionTest(t, compressionTestConfig{
		Handler:        handler,
		Level:          6,
		MinSize:        1024,
		AcceptEncoding: acceptEncodingGzip,
	})
	defer resp.Body.Close()
	verifyGzipResponse(t, resp, big)
}

func TestCompressionHEADRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodHead, "/", nil)
	req.Header.Set("Accept-Encoding", acceptEncodingGzip)
	rec := httptest.NewRecorder()
	Compression(CompressionConfig{Level: 6})(handler).ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") == contentEncodingGzip {
		t.Errorf("expected no gzip encoding for HEAD request")
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		acceptEncoding string
		want           bool
	}{
		{"gzip;q=1", true},
		{"gzip;q=0.5", true},
		{"gzip;q=0", false},
		{"gzip; q=0.0", false},
		{"deflate, gzip", true},
		{"deflate", false},
		{"x-gzip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := acceptsGzip(tt.acceptEncoding); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.acceptEncoding, got, tt.want)
		}
	}
}

func TestCompressionPreExistingContentEncoding(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "br")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test content"))
	})

	resp := runCompressionTest(t, compressionTestConfig{Handler: handler, Level: 6, AcceptEncoding: acceptEncodingGzip})
	defer resp.Body.Close()

	if resp.Header.Get("Content-Encoding") != "br" {
		t.Errorf("expected Content-Encoding: br, got: %s", resp.Header.Get("Content-Encoding"))
	}
}
