package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/KAsare1/postly/cmd/cache"
	"github.com/KAsare1/postly/cmd/config"
	"github.com/KAsare1/postly/cmd/models"
	"github.com/KAsare1/postly/cmd/utils"
	"github.com/KAsare1/postly/service/dashboard"
	"github.com/KAsare1/postly/service/forum"
	"github.com/KAsare1/postly/service/user"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

type APIServer struct {
	cfg     *config.Config
	db      *gorm.DB
	cache   cache.PageCache
	metrics *utils.Metrics
}

func NewApiServer(cfg *config.Config, db *gorm.DB) *APIServer {
	return &APIServer{
		cfg:     cfg,
		db:      db,
		cache:   cache.New(cfg.CacheSize, cfg.CacheTTL),
		metrics: utils.NewMetrics(),
	}
}

// Router builds the full handler chain. Fixed prefixes are registered before the
// /{username}/ routes, which would otherwise swallow them.
func (s *APIServer) Router() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(utils.PageNotFound)
	router.Use(s.metrics.Middleware)

	router.HandleFunc("/health", s.health).Methods("GET")
	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	mediaURL := s.cfg.MediaURL
	if !strings.HasSuffix(mediaURL, "/") {
		mediaURL += "/"
	}
	router.PathPrefix(mediaURL).
		Handler(http.StripPrefix(mediaURL, http.FileServer(http.Dir(s.cfg.MediaRoot)))).
		Methods("GET")

	auth := utils.NewAuthenticator(s.cfg.SecretKey, s.cfg.TokenTTL).
		WithUserLookup(func(ctx context.Context, userID uint) (bool, error) {
			return models.UserExists(ctx, s.db, userID)
		})
	images := utils.NewImageStore(s.cfg.MediaRoot, mediaURL)

	dashboardHandler := dashboard.NewDashboardHandler(s.db)
	dashboardHandler.RegisterRoutes(router)

	forumHandler := forum.NewPostHandler(s.db, images, s.cache, s.cfg.PageSize)
	forumHandler.RegisterRoutes(router)

	userHandler := user.NewHandler(s.db, auth, images, s.cfg.PageSize)
	userHandler.RegisterRoutes(router)

	var handler http.Handler = router
	handler = auth.Middleware(handler)
	handler = utils.Recoverer(handler)
	handler = utils.RequestLogger(slog.Default())(handler)
	handler = handlers.CORS(
		handlers.AllowedOrigins(s.cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.AllowCredentials(),
	)(handler)
	return handlers.ProxyHeaders(handler)
}

func (s *APIServer) health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		utils.Logger(r.Context()).Error("Health check failed", "error", err)
		utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server running", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
