package httpx

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	Level   int // Compression level (1-9, where 6 is default)
	MinSize int // Minimum response size to compress (bytes, 0 = always compress)
	Logger  *slog.Logger
}

// gzipWriterPool keeps one sync.Pool of writers per compression level.
type gzipWriterPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

func newGzipWriterPool() *gzipWriterPool {
	return &gzipWriterPool{pools: make(map[int]*sync.Pool)}
}

func (p *gzipWriterPool) levelPool(level int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[level]; ok {
		return pool
	}
	pool := &sync.Pool{New: func() any { return newGzipWriter(level) }}
	p.pools[level] = pool
	return pool
}

func (p *gzipWriterPool) get(level int) *gzip.Writer {
	if w, ok := p.levelPool(level).Get().(*gzip.Writer); ok {
		return w
	}
	return newGzipWriter(level)
}

func (p *gzipWriterPool) put(w *gzip.Writer, level int) {
	w.Reset(io.Discard)
	p.levelPool(level).Put(w)
}

func newGzipWriter(level int) *gzip.Writer {
	w, err := gzip.NewWriterLevel(io.Discard, level)
	if err != nil {
		return gzip.NewWriter(io.Discard)
	}
	return w
}

var compressibleTypes = map[string]bool{
	"application/json":         true,
	"application/problem+json": true,
	"text/plain":               true,
}

// Compression returns a middleware that gzips JSON and text responses when
// the client accepts gzip. HEAD requests and 1xx, 204 and 304 responses pass
// through untouched.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	if cfg.Level == 0 {
		cfg.Level = gzip.DefaultCompression
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pool := newGzipWriterPool()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")
			gzw := &gzipResponseWriter{ResponseWriter: w, request: r, pool: pool, cfg: &cfg}
			next.ServeHTTP(gzw, r)
			gzw.finish()
		})
	}
}

// acceptsGzip checks if the client accepts gzip encoding, respecting q=0.
func acceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		part = strings.TrimSpace(part)
		encoding, params, _ := strings.Cut(part, ";")
		if !strings.EqualFold(strings.TrimSpace(encoding), "gzip") {
			continue
		}
		q := strings.ReplaceAll(params, " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

func isCompressibleContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return compressibleTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

// gzipResponseWriter decides at WriteHeader time whether to compress. With a
// MinSize the body is buffered until the threshold is crossed.
type gzipResponseWriter struct {
	http.ResponseWriter
	request *http.Request
	pool    *gzipWriterPool
	cfg     *CompressionConfig

	status        int
	headerWritten bool
	compress      bool
	gz            *gzip.Writer
	buffered      []byte
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	w.status = statusCode

	if statusCode < 200 || statusCode == http.StatusNoContent || statusCode == http.StatusNotModified ||
		w.Header().Get("Content-Encoding") != "" ||
		!isCompressibleContentType(w.Header().Get("Content-Type")) {
		w.ResponseWriter.WriteHeader(statusCode)
		return
	}

	w.compress = true
	if w.cfg.MinSize <= 0 {
		w.startGzip()
	}
}

func (w *gzipResponseWriter) startGzip() {
	w.gz = w.pool.get(w.cfg.Level)
	w.gz.Reset(w.ResponseWriter)
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if !w.compress {
		return w.ResponseWriter.Write(b)
	}
	if w.gz == nil {
		w.buffered = append(w.buffered, b...)
		if len(w.buffered) < w.cfg.MinSize {
			return len(b), nil
		}
		w.startGzip()
		_, err := w.gz.Write(w.buffered)
		w.buffered = nil
		return len(b), err
	}
	return w.gz.Write(b)
}

// finish closes the gzip stream, or flushes a body that never reached MinSize uncompressed.
func (w *gzipResponseWriter) finish() {
	if w.compress && w.gz == nil {
		w.ResponseWriter.WriteHeader(w.status)
		if len(w.buffered) > 0 {
			if _, err := w.ResponseWriter.Write(w.buffered); err != nil {
				return
			}
		}
		return
	}
	if w.gz == nil {
		return
	}
	if err := w.gz.Close(); err != nil {
		w.cfg.Logger.ErrorContext(w.request.Context(), "closing gzip writer failed", "error", err)
	}
	w.pool.put(w.gz, w.cfg.Level)
}

// Flush implements http.Flusher for streaming support.
func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		if err := w.gz.Flush(); err != nil {
			w.cfg.Logger.ErrorContext(w.request.Context(), "flushing gzip writer failed", "error", err)
		}
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker.
func (w *gzipResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("http.Hijacker not supported")
}
