package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"yatube/internal/auth"
	"yatube/internal/cache"
)

const CookieName = "session_id"

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		u, err := s.Auth.UserFromSession(r.Context(), c.Value)
		switch {
		case err == nil:
			r = r.WithContext(auth.WithUser(r.Context(), u))
		case errors.Is(err, auth.ErrNoSession):
			s.Log.WithField("path", r.URL.Path).Debug("stale session cookie")
		default:
			s.Log.WithError(err).Warn("session lookup failed")
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth sends anonymous visitors to the login page, remembering where
// they were headed.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFrom(r.Context()); !ok {
			http.Redirect(w, r, loginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loginURL keeps slashes readable in next, the way /auth/login/?next=/new/
// is usually written.
func loginURL(next string) string {
	return "/auth/login/?next=" + strings.ReplaceAll(url.QueryEscape(next), "%2F", "/")
}

// safeNext accepts only same-site absolute paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// limitWrites applies the per-client rate limit to POST requests.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		key := clientIP(r)
		if !s.Limiter.Allow(key) {
			s.Metrics.RateLimited()
			s.Log.WithFields(logrus.Fields{"client": key, "path": r.URL.Path}).Warn("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Слишком много запросов, попробуйте позже.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cachePage serves GET responses from the page cache. Entries are keyed by
// viewer and full URL and live for the configured TTL; writes never
// invalidate them.
func (s *Server) cachePage(next http.Handler) http.Handler {
	if s.Cache == nil || s.Cfg.PageCacheTTL <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := pageCacheKey(r)

		e, ok, err := s.Cache.Get(ctx, key)
		if err != nil {
			s.Log.WithError(err).Warn("page cache get failed")
		}
		if ok {
			s.Metrics.PageCache(true)
			w.Header().Set("Content-Type", e.ContentType)
			w.Header().Set("X-Page-Cache", "hit")
			_, _ = w.Write(e.Body)
			return
		}
		s.Metrics.PageCache(false)

		cw := &captureRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(cw, r)
		if cw.status != http.StatusOK {
			return
		}
		entry := cache.Entry{ContentType: cw.Header().Get("Content-Type"), Body: cw.buf.Bytes()}
		if err := s.Cache.Set(ctx, key, entry, s.Cfg.PageCacheTTL); err != nil {
			s.Log.WithError(err).Warn("page cache set failed")
		}
	})
}

func pageCacheKey(r *http.Request) string {
	uid, _ := auth.UserIDFrom(r.Context())
	return "page:" + strconv.FormatInt(uid, 10) + ":" + r.URL.Path + "?" + r.URL.RawQuery
}

// captureRW copies the body it writes through so it can be cached.
type captureRW struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *captureRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureRW) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.Log.WithField("stack", string(debug.Stack())).Errorf("panic: %v", p)
				s.serverError(w, r, fmt.Errorf("panic: %v", p))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// --- access log ---

type statusRW struct {
	http.ResponseWriter
	status int
}

func (w *statusRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withAccessLog logs one line per request: method, path, status, duration.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start).Truncate(time.Microsecond).String(),
		}).Info("request")
	})
}

// WithTimeout bounds the whole request.
func WithTimeout(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, requestTimeout, "request timeout")
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
