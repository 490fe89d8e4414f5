// Package api exposes the bot over HTTP: the event webhook, result downloads and live notifications.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/pdfbot-go/api/controllers"
	"github.com/moyoez/pdfbot-go/api/middlewares"
	"github.com/moyoez/pdfbot-go/api/notifyhub"
	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
)

const (
	// BasePath prefixes every route.
	BasePath = "/api/bot/v1"

	readHeaderTimeout = 10 * time.Second
)

type ServerOptions struct {
	Port     int
	Protocol string // http | https
	Bot      controllers.Handler
	Store    *store.Store
	// Hub is nil when websocket notifications are off.
	Hub     *notifyhub.Hub
	Limiter *middlewares.UserLimiter
	Status  controllers.StatusInfo
	// MaxUploadBytes bounds multipart events held in memory before spilling to disk.
	MaxUploadBytes int64
}

// Server represents the HTTP API server the chat transport talks to.
type Server struct {
	opts   ServerOptions
	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Bot == nil || opts.Store == nil {
		return nil, errors.New("api server needs a bot and a store")
	}
	if opts.Protocol == "" {
		opts.Protocol = "http"
	}
	return &Server{opts: opts}, nil
}

// Handler builds the route table; it is what Start serves.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

func (s *Server) setupRoutes() *gin.Engine {
	if gin.Mode() != gin.TestMode {
		if tool.DefaultLogger.GetLevel() == log.DebugLevel {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	if s.opts.MaxUploadBytes > 0 {
		engine.MaxMultipartMemory = s.opts.MaxUploadBytes
	}

	var limiter controllers.Limiter
	if s.opts.Limiter != nil {
		limiter = s.opts.Limiter
	}
	eventCtrl := controllers.NewEventController(s.opts.Bot, limiter)
	resultCtrl := controllers.NewResultController(s.opts.Store)

	status := s.opts.Status
	status.NotifyWSEnabled = s.opts.Hub != nil

	v1 := engine.Group(BasePath)
	{
		v1.POST("/events", eventCtrl.HandleEvent)
		v1.GET("/qr", controllers.GenerateQRCode)
		v1.GET("/status", controllers.UserStatus(status, s.opts.Store.Len))
	}
	// results and live notifications go through the local transport sidecar
	local := engine.Group(BasePath, middlewares.OnlyAllowLocal)
	{
		local.GET("/result", resultCtrl.HandleResult)
		local.GET("/session", resultCtrl.HandleSession)
		if s.opts.Hub != nil {
			local.GET("/ws", notifyhub.HandleNotifyWS(s.opts.Hub))
		}
	}
	return engine
}

// Start serves until Shutdown; it returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	handler := s.Handler()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	address := fmt.Sprintf("%s://0.0.0.0:%d", s.opts.Protocol, s.opts.Port)
	tool.DefaultLogger.Infof("Starting API server on %s", address)

	if s.opts.Protocol == "https" {
		cfg := tool.GetCurrentConfig()
		before := cfg.CertPEM
		cert, err := tool.GetOrCreateTLSCertFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("failed to get TLS certificate: %v", err)
		}
		if cfg.CertPEM != before {
			tool.PersistConfig(cfg)
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		tool.DefaultLogger.Infof("TLS certificate configured for HTTPS")
		return srv.ListenAndServeTLS("", "")
	}
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight turns.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
