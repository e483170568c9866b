// Package admin serves the device's local HTTP surface: firmware
// transfer, metrics and a status snapshot.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	fx "github.com/robotalks/prop.go/pkg/framework"
)

// DefaultAddr is the admin listener address.
const DefaultAddr = ":8266"

const shutdownTimeout = 3 * time.Second

// StatusFunc produces the JSON body of GET /status.
type StatusFunc func() any

// Server is the admin HTTP server.
type Server struct {
	Addr   string
	Router *gin.Engine

	server *http.Server
}

// New creates a Server exposing metrics from gatherer, if not nil, and
// status from statusFn, if not nil.
func New(addr string, gatherer prometheus.Gatherer, statusFn StatusFunc) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if statusFn != nil {
		router.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, statusFn())
		})
	}
	return &Server{Addr: addr, Router: router}
}

// Name implements Named.
func (s *Server) Name() string {
	return "admin"
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{Addr: s.Addr, Handler: s.Router}
	glog.Infof("admin listening on %s", s.Addr)
	return fx.RunWithContextCancel(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			glog.Warningf("admin shutdown: %v", err)
		}
	}, func() error {
		err := s.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
}
