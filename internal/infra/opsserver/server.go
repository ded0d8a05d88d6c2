package opsserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"notification_reconciler/internal/app"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatusProvider reports the current session state.
type StatusProvider interface {
	Status() app.Status
}

// Server is the operational HTTP endpoint: liveness, Prometheus metrics and session status.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	logger  *logrus.Entry
}

func NewServer(addr string, status StatusProvider, metrics http.Handler, logger *logrus.Entry) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics))
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.Status())
	})

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.WithField("addr", s.httpSrv.Addr).Info("Ops server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Ops server stopped unexpectedly")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
