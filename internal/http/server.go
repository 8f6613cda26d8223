package httpx

import (
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"yatube/internal/app"
	"yatube/internal/auth"
	"yatube/internal/cache"
	"yatube/internal/media"
	"yatube/internal/metrics"
	"yatube/internal/store"
	"yatube/internal/util"
	"yatube/web"
)

const (
	indexPerPage   = 3
	profilePerPage = 3
	followPerPage  = 5
	groupPostLimit = 11

	queryTimeout   = 3 * time.Second
	requestTimeout = 15 * time.Second
)

// Deps are the collaborators of the web layer. Auth and Metrics are built
// from the store when left nil.
type Deps struct {
	Store   store.Store
	Auth    *auth.Service
	Cache   cache.Cache
	Media   media.Store
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

type Server struct {
	Store   store.Store
	Auth    *auth.Service
	Cache   cache.Cache
	Media   media.Store
	Metrics *metrics.Metrics
	Cfg     app.Config
	Log     logrus.FieldLogger
	Router  *mux.Router
	Limiter *RateLimiter

	views   *util.Renderer
	handler http.Handler
}

func NewServer(cfg app.Config, d Deps) (*Server, error) {
	if d.Store == nil || d.Media == nil || d.Log == nil {
		return nil, errors.New("httpx: store, media and logger are required")
	}
	s := &Server{
		Store:   d.Store,
		Auth:    d.Auth,
		Cache:   d.Cache,
		Media:   d.Media,
		Metrics: d.Metrics,
		Cfg:     cfg,
		Log:     d.Log,
	}
	if s.Auth == nil {
		s.Auth = auth.New(d.Store, d.Store, cfg.SessionLifetime, d.Log)
	}
	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}
	if cfg.RateLimitRPS > 0 {
		s.Limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	views, err := util.NewRenderer(web.FS, template.FuncMap{"mediaURL": s.Media.URL})
	if err != nil {
		return nil, err
	}
	s.views = views

	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter().StrictSlash(true)
	r.Use(s.Metrics.Middleware, s.withSession, s.limitWrites)

	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	if srv, ok := s.Media.(interface{ Handler() http.Handler }); ok {
		prefix := mediaPrefix(cfg.MediaURL)
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, srv.Handler()))
	}

	r.Handle("/", s.cachePage(http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/group/{slug}/", s.handleGroup).Methods(http.MethodGet)
	r.Handle("/new/", s.requireAuth(http.HandlerFunc(s.handlePostNew))).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/follow/", s.requireAuth(http.HandlerFunc(s.handleFollowIndex))).Methods(http.MethodGet)

	r.HandleFunc("/auth/signup/", s.handleSignup).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/auth/login/", s.handleLogin).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/auth/logout/", s.handleLogout).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/{username}/", s.handleProfile).Methods(http.MethodGet)
	r.Handle("/{username}/follow/", s.requireAuth(http.HandlerFunc(s.handleFollow))).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/{username}/unfollow/", s.requireAuth(http.HandlerFunc(s.handleUnfollow))).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{username}/{post_id:[0-9]+}/", s.handlePost).Methods(http.MethodGet)
	r.Handle("/{username}/{post_id:[0-9]+}/edit/", s.requireAuth(http.HandlerFunc(s.handlePostEdit))).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/{username}/{post_id:[0-9]+}/comment", s.requireAuth(http.HandlerFunc(s.handleAddComment))).Methods(http.MethodPost)

	r.NotFoundHandler = s.withSession(http.HandlerFunc(s.handleNotFound))
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	s.Router = r

	s.handler = s.withAccessLog(WithTimeout(s.recoverer(secureHeaders(r))))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func mediaPrefix(u string) string {
	if u == "" {
		u = "/media/"
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}
