package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"go-pin-slideshow/internal/logx"
)

// responseWriter 记录状态码与字节数，并在客户端接受 gzip 且内容为 JSON/HTML 时压缩输出。
type responseWriter struct {
	http.ResponseWriter
	status   int
	size     int
	wantGZip bool
	decided  bool
	gz       *gzip.Writer
}

func (w *responseWriter) needZip() bool {
	ct := strings.ToLower(w.Header().Get("Content-Type"))
	return strings.HasPrefix(ct, "application/json") || strings.HasPrefix(ct, "text/html")
}

func (w *responseWriter) WriteHeader(status int) {
	if w.decided {
		return
	}
	w.decided = true
	w.status = status
	if w.wantGZip && w.needZip() && status != http.StatusNoContent && status != http.StatusNotModified {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")
		w.gz, _ = gzip.NewWriterLevel(w.ResponseWriter, gzip.BestSpeed)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	var (
		n   int
		err error
	)
	if w.gz != nil {
		n, err = w.gz.Write(b)
	} else {
		n, err = w.ResponseWriter.Write(b)
	}
	w.size += n
	return n, err
}

// Flush 让流式响应（图片代理）可以逐块下发。
func (w *responseWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) close() {
	if w.gz != nil {
		_ = w.gz.Close()
	}
}

func acceptsGZip(r *http.Request) bool {
	for _, line := range r.Header.Values("Accept-Encoding") {
		for _, enc := range strings.Split(line, ",") {
			enc, _, _ = strings.Cut(strings.TrimSpace(enc), ";")
			if strings.EqualFold(enc, "gzip") {
				return true
			}
		}
	}
	return false
}

// accessLog 包装响应写入器，请求结束后记录一行访问日志。
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		lw := &responseWriter{ResponseWriter: w, wantGZip: acceptsGZip(r)}
		defer func() {
			lw.close()
			status := lw.status
			if status == 0 {
				status = http.StatusOK
			}
			logx.Info("http",
				"method", r.Method,
				"uri", r.URL.Path,
				"status", status,
				"size", lw.size,
				"duration", time.Since(begin),
			)
		}()
		next.ServeHTTP(lw, r)
	})
}
