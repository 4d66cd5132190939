package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/faredit/faredit/pkg/broker"
	"github.com/faredit/faredit/pkg/config"
	"github.com/faredit/faredit/pkg/logger"
	"github.com/faredit/faredit/pkg/models"
)

type Server struct {
	ginEngine *gin.Engine
	upgrader  *websocket.Upgrader
	logger    *slog.Logger
	broker    *broker.Broker
	cfg       *config.AppConfig
	port      int
}

func NewServer(cfg *config.AppConfig) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	server := &Server{
		ginEngine: ginEngine,
		upgrader:  upgrader,
		logger:    logger.GetLogger(),
		broker:    broker.New(logger.GetLogger(), nil),
		cfg:       cfg,
		port:      0,
	}

	server.SetupRoutes()

	return server
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen first; if the port is occupied return an error immediately.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	// Record the actual port (useful if we ever switch to :0).
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = s.cfg.Port()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Non-blocking: if startup fails immediately return the error; otherwise
	// let main continue.
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

func (s *Server) SetupRoutes() {
	// The channel endpoint: one websocket connection per client session.
	s.ginEngine.GET("/channel", func(c *gin.Context) {
		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		s.broker.HandleConn(c.Request.Context(), ws)
	})

	apiGroup := s.ginEngine.Group("/api")
	apiGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.Response{Code: 0, Message: "ok"})
	})
}
