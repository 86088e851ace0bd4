// Package api exposes the calibration runner over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/thermocal/pkg/calibration"
	"github.com/itohio/thermocal/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// Runner is the part of *calibration.Runner served by the API.
type Runner interface {
	Start(steps []calibration.Step) (string, error)
	Stop()
	Status() calibration.Status
	Latest() (calibration.Snapshot, bool)
}

// Server routes HTTP requests to a Runner.
type Server struct {
	runner  Runner
	metrics *metrics.Metrics
	router  *gin.Engine
}

// New creates the server and its routes.
func New(r Runner, m *metrics.Metrics) *Server {
	s := &Server{runner: r, metrics: m}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.POST("/runs", s.startRun)
	router.POST("/runs/stop", s.stopRun)
	router.GET("/status", s.getStatus)
	router.GET("/snapshot", s.getSnapshot)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.serve(ctx, l)
}

func (s *Server) serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.router}

	errc := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		errc <- srv.Serve(l)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down http server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return pkgerrors.Wrap(err, "failed to shutdown http server")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) startRun(c *gin.Context) {
	var steps []calibration.Step
	if err := c.BindJSON(&steps); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.runner.Start(steps)
	switch {
	case err == nil:
	case errors.Is(err, calibration.ErrNoSteps):
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, calibration.ErrRunActive), errors.Is(err, calibration.ErrStopped):
		c.IndentedJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	default:
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		_ = c.Error(err)
		return
	}

	logrus.WithField("run_id", id).Infof("run started with %d steps", len(steps))
	c.IndentedJSON(http.StatusCreated, gin.H{"run_id": id})
}

func (s *Server) stopRun(c *gin.Context) {
	s.runner.Stop()
	c.IndentedJSON(http.StatusOK, s.runner.Status())
}

func (s *Server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.runner.Status())
}

func (s *Server) getSnapshot(c *gin.Context) {
	snap, ok := s.runner.Latest()
	if !ok {
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}
	c.IndentedJSON(http.StatusOK, snap)
}
