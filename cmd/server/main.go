package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/EcosIA33/revisia-tap-contact/internal/config"
	"github.com/EcosIA33/revisia-tap-contact/internal/contact"
	"github.com/EcosIA33/revisia-tap-contact/internal/qr"
)

var (
	cfg config.Config

	requestSem *semaphore.Weighted
	scanSem    *semaphore.Weighted

	// Per-IP rate limiters
	limiters = &sync.Map{}

	metrics = &serverMetrics{}
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	scansOK       int64
	scansEmpty    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) countScan(ok bool) {
	m.mu.Lock()
	if ok {
		m.scansOK++
	} else {
		m.scansEmpty++
	}
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active, ok, empty int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs, m.scansOK, m.scansEmpty
}

func main() {
	cfg = config.Load()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	requestSem = semaphore.NewWeighted(cfg.MaxConcurrentRequests)
	scanSem = semaphore.NewWeighted(cfg.MaxScanConcurrent)

	decoder := qr.New(qr.Options{
		SecondaryVariantCap: cfg.SecondaryVariantCap,
		DisableSecondary:    cfg.DisableSecondaryEngines,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", withInternalAuth(handleMetrics))

	mux.HandleFunc("/scan",
		withInternalAuth(
			withRateLimit(
				withMethod("POST",
					withConcurrencyLimit(func(w http.ResponseWriter, r *http.Request) {
						handleScan(w, r, decoder)
					})))))

	mux.HandleFunc("/parse",
		withInternalAuth(
			withRateLimit(
				withMethod("POST", withConcurrencyLimit(handleParse)))))

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withLogging(withRecovery(mux)),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	if strings.TrimSpace(cfg.InternalSharedSecret) == "" {
		fmt.Fprintln(os.Stderr, "warning: INTERNAL_SHARED_SECRET not set (endpoints are open)")
	}

	go logStats()

	fmt.Printf("tapcontact listening on %s (max concurrent: %d, scans: %d)\n",
		srv.Addr, cfg.MaxConcurrentRequests, cfg.MaxScanConcurrent)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

func logStats() {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active, ok, empty := metrics.get()
		fmt.Printf("[stats] active=%d total=%d scans_ok=%d scans_empty=%d goroutines=%d mem=%dMB\n",
			active, total, ok, empty, runtime.NumGoroutine(), m.Alloc/(1<<20))

		clearRateLimiters()
	}
}

// clearRateLimiters empties the per-IP map in place; concurrent readers
// keep working and simply get a fresh limiter on their next request.
// (If you want smarter: store last-seen timestamps.)
func clearRateLimiters() {
	limiters.Range(func(k, _ any) bool {
		limiters.Delete(k)
		return true
	})
}

// ---------- Handlers ----------

func handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active, _, _ := metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": "1.0.0",
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active, ok, empty := metrics.get()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"scansDecoded":   ok,
		"scansEmpty":     empty,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

type scanResponse struct {
	Success bool            `json:"success"`
	Payload string          `json:"payload,omitempty"`
	Engine  string          `json:"engine,omitempty"`
	Contact *contact.Record `json:"contact,omitempty"`
	Error   *string         `json:"error,omitempty"`
}

// handleScan runs the full pipeline: image bytes in, decoded payload and
// the parsed contact out. "Nothing decoded" is a 200 with success=false —
// the kiosk shows a retry prompt, it is not a server fault.
func handleScan(w http.ResponseWriter, r *http.Request, decoder *qr.Decoder) {
	data, err := readImageBytes(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.ScanTimeout)
	defer cancel()

	// Scan capacity gating: the variant cascade is CPU heavy
	if err := scanSem.Acquire(ctx, 1); err != nil {
		writeErr(w, http.StatusServiceUnavailable, "scan_capacity", "Scanning at capacity")
		return
	}
	defer scanSem.Release(1)

	res, ok := decoder.Scan(ctx, data)
	metrics.countScan(ok)
	if !ok {
		msg := "no QR code could be decoded from the image"
		writeJSON(w, http.StatusOK, scanResponse{Success: false, Error: &msg})
		return
	}

	rec := contact.Parse(res.Payload)
	writeJSON(w, http.StatusOK, scanResponse{
		Success: true,
		Payload: res.Payload,
		Engine:  res.Engine,
		Contact: &rec,
	})
}

type parseRequest struct {
	Payload string `json:"payload"`
}

// handleParse exposes the parser alone, for payloads scanned client-side.
func handleParse(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[parseRequest](r, cfg.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	rec := contact.Parse(req.Payload)
	writeJSON(w, http.StatusOK, scanResponse{
		Success: true,
		Payload: strings.TrimSpace(req.Payload),
		Contact: &rec,
	})
}

// readImageBytes accepts either a multipart form with an "image" part (the
// kiosk upload widget) or raw image bytes as the request body.
func readImageBytes(r *http.Request) ([]byte, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(cfg.MaxImageBytes); err != nil {
			return nil, fmt.Errorf("parse multipart: %w", err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("image part required")
		}
		defer file.Close()
		return readLimited(file, cfg.MaxImageBytes)
	}
	return readLimited(r.Body, cfg.MaxImageBytes)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("image exceeds %dMB limit", maxBytes/(1<<20))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request body")
	}
	return data, nil
}

// ---------- Middleware ----------

func withMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method must be "+method)
			return
		}
		next(w, r)
	}
}

func withInternalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shared := cfg.InternalSharedSecret
		if shared == "" {
			next(w, r)
			return
		}
		got := r.Header.Get("X-Internal-Auth")
		if subtle.ConstantTimeCompare([]byte(got), []byte(shared)) != 1 {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "Invalid authentication")
			return
		}
		next(w, r)
	}
}

func withConcurrencyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requestSem.Acquire(r.Context(), 1); err != nil {
			writeErr(w, http.StatusServiceUnavailable, "capacity", "Service at capacity")
			return
		}
		defer requestSem.Release(1)

		metrics.incActive()
		defer metrics.decActive()

		next(w, r)
	}
}

func withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		limiter := getRateLimiter(ip)

		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeErr(w, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				fmt.Fprintf(os.Stderr, "panic: %v\n", err)
				writeErr(w, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()
		ww := &wrapWriter{ResponseWriter: w, status: 200}
		ww.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(ww, r)

		fmt.Printf("%s %s %s -> %d (%s)\n",
			reqID[:8], r.Method, sanitizeLogString(r.URL.Path), ww.status, time.Since(start))
	})
}

type wrapWriter struct {
	http.ResponseWriter
	status int
}

func (w *wrapWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---------- Helpers ----------

func getRateLimiter(ip string) *rate.Limiter {
	if v, ok := limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}

	every := cfg.RateLimitEvery
	if every <= 0 {
		every = 600 * time.Millisecond // ~100/min
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	limiter := rate.NewLimiter(rate.Every(every), burst)
	limiters.Store(ip, limiter)
	return limiter
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx > 0 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&out); err != nil {
		return out, err
	}

	// Ensure there's nothing else after the first JSON value
	if err := dec.Decode(new(any)); err != io.EOF {
		if err == nil {
			return out, fmt.Errorf("unexpected trailing data")
		}
		return out, err
	}

	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
