package gateway

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/cache"
	"github.com/careconnect/data-gateway/internal/middleware"
)

// CacheStatusHeader reports HIT or MISS on cacheable responses.
const CacheStatusHeader = "X-Cache-Status"

// ResponseCache serves cacheable reads from the response cache, answering
// conditional requests with 304 and populating the cache on misses.
func ResponseCache(store cache.Store, ttl time.Duration, logger *zap.Logger) middleware.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !cache.ShouldCache(r) {
				next.ServeHTTP(w, r)
				return
			}

			identity := cache.AnonymousIdentity
			if cred, ok := CredentialFromContext(r.Context()); ok {
				identity = cred.Key
			}
			key := cache.KeyFromRequest(r, identity)

			entry, found, err := store.Get(r.Context(), key)
			if err != nil {
				logger.Warn("cache lookup failed", zap.Error(err), zap.String("path", r.URL.Path))
			}
			if found {
				serveCached(w, r, &entry)
				return
			}

			rec := &recordingResponseWriter{header: make(http.Header), statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode == http.StatusOK {
				stored, err := store.Put(r.Context(), key, rec.body.Bytes(), ttl)
				if err != nil {
					logger.Warn("cache store failed", zap.Error(err), zap.String("path", r.URL.Path))
					replay(w, rec, CacheStatusHeader, "MISS")
					return
				}
				copyHeader(w.Header(), rec.header)
				setValidators(w, &stored)
				w.Header().Set(CacheStatusHeader, "MISS")
				w.WriteHeader(rec.statusCode)
				_, _ = w.Write(rec.body.Bytes())
				return
			}

			replay(w, rec, "", "")
		})
	}
}

func serveCached(w http.ResponseWriter, r *http.Request, entry *cache.Entry) {
	setValidators(w, entry)

	// A 304 carries validators only; the cache status header is reserved
	// for responses that serve a body.
	if cache.ConditionalMatch(r, entry) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set(CacheStatusHeader, "HIT")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Payload)
}

func setValidators(w http.ResponseWriter, entry *cache.Entry) {
	w.Header().Set("ETag", entry.ETag)
	w.Header().Set("Last-Modified", entry.LastModified.Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(entry.MaxAge()))
}

func replay(w http.ResponseWriter, rec *recordingResponseWriter, headerKey, headerVal string) {
	copyHeader(w.Header(), rec.header)
	if headerKey != "" {
		w.Header().Set(headerKey, headerVal)
	}
	w.WriteHeader(rec.statusCode)
	_, _ = w.Write(rec.body.Bytes())
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// recordingResponseWriter buffers the downstream response so the cache
// can decide how to serve it.
type recordingResponseWriter struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func (w *recordingResponseWriter) Header() http.Header { return w.header }

func (w *recordingResponseWriter) WriteHeader(code int) { w.statusCode = code }

func (w *recordingResponseWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}
