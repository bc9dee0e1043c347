package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"GiftSend/internal/giftogram"
	"GiftSend/internal/orders"
	"GiftSend/internal/recipients"
)

type Options struct {
	ListenAddr     string
	MaxUploadSize  int64
	RequestTimeout time.Duration
}

// Server is the HTTP API consumed by the dashboard frontend.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	recipients *recipients.Service
	orders     *orders.Service
	provider   *giftogram.Client
	opts       Options
	log        *zap.Logger
	startTime  time.Time
}

func NewServer(
	recipientsSvc *recipients.Service,
	ordersSvc *orders.Service,
	provider *giftogram.Client,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 5 << 20
	}

	s := &Server{
		router:     chi.NewRouter(),
		recipients: recipientsSvc,
		orders:     ordersSvc,
		provider:   provider,
		opts:       opts,
		log:        logger.Named("api"),
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.timed(s.router).Get("/api/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.userMiddleware)

		r.Route("/api/dashboard", func(r chi.Router) {
			t := s.timed(r)
			t.Get("/stats", s.handleDashboardStats)
			t.Post("/upload", s.handleUpload)
			t.Get("/email-lists", s.handleListBatches)
			t.Get("/email-lists/{id}", s.handleGetBatch)
			t.Delete("/email-lists/{id}", s.handleDeleteBatch)
			t.Get("/emails/{listId}", s.handleListRecipients)
		})

		r.Route("/api/giftcards", func(r chi.Router) {
			// A bulk send runs to completion; it is not bound by the request timeout.
			r.Post("/send", s.handleSend)

			t := s.timed(r)
			t.Get("/campaigns", s.handleCampaigns)
			t.Get("/history", s.handleHistory)
			t.Get("/stats", s.handleGiftCardStats)
			t.Get("/{id}/status", s.handleRefreshStatus)
			t.Delete("/{id}", s.handleCancel)
		})

		s.timed(r).Get("/api/provider/config", s.handleProviderConfig)
	})
}

// timed applies the request timeout, when one is configured.
func (s *Server) timed(r chi.Router) chi.Router {
	if s.opts.RequestTimeout > 0 {
		return r.With(middleware.Timeout(s.opts.RequestTimeout))
	}
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info("api server started", zap.String("addr", s.opts.ListenAddr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
