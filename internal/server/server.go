// Package server assembles serve mode: the static page host and the run API
// on one listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	restful "github.com/emicklei/go-restful/v3"
	"github.com/fatih/color"

	"github.com/acwooding/dmp-test-ci/internal/log"
	runApi "github.com/acwooding/dmp-test-ci/internal/run/api"
)

// Options configures the HTTP server
type Options struct {
	Port int
	// StaticRoot is served at "/" so the suite can load cord19.html from it.
	// Empty disables static hosting.
	StaticRoot string
}

// Server hosts the visualization and the /api/v1 web service
type Server struct {
	http   *http.Server
	logger *log.Logger
	ws     *restful.WebService
}

// New builds the container, routes and filters
func New(opts Options, handler *runApi.Handler, logger *log.Logger) *Server {
	container := restful.NewContainer()

	ws := new(restful.WebService)
	ws.Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	runApi.RegisterRoutes(ws, handler)
	container.Add(ws)

	if opts.StaticRoot != "" {
		container.Handle("/", http.FileServer(http.Dir(opts.StaticRoot)))
	}

	// No AllowedDomains means any origin
	cors := restful.CrossOriginResourceSharing{
		AllowedHeaders: []string{"Content-Type", "Accept"},
		AllowedMethods: []string{"GET", "POST"},
		Container:      container,
	}
	container.Filter(cors.Filter)
	container.Filter(requestLogger(logger))

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           container,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
		ws:     ws,
	}
}

// Handler returns the root handler, for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func requestLogger(logger *log.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		url := req.Request.URL.Path
		if req.Request.URL.RawQuery != "" {
			url += "?" + req.Request.URL.RawQuery
		}
		logger.Info("%s %s %s", req.Request.Method, url, req.Request.Proto)

		if logger.IsDebugEnabled() && len(req.Request.Header) > 0 {
			headers := make([]string, 0, len(req.Request.Header))
			for name, values := range req.Request.Header {
				headers = append(headers, fmt.Sprintf("%s: %s", name, values[0]))
			}
			logger.Debug("Headers: %s", strings.Join(headers, ", "))
		}

		chain.ProcessFilter(req, resp)

		logger.Debug("Response status: %d", resp.StatusCode())
	}
}

// formatHTTPMethod returns a colored and bold HTTP method string
func formatHTTPMethod(method string) string {
	switch method {
	case http.MethodGet:
		return color.New(color.Bold, color.FgGreen).Sprint(method)
	case http.MethodPost:
		return color.New(color.Bold, color.FgYellow).Sprint(method)
	default:
		return color.New(color.Bold).Sprint(method)
	}
}

// LogEndpoints logs every registered API route
func (s *Server) LogEndpoints() {
	s.logger.Info("API endpoints:")
	for _, route := range s.ws.Routes() {
		s.logger.Info("  %s\t\t%s\t\t%s", formatHTTPMethod(route.Method), route.Path, route.Doc)
	}
}

// LogURLs logs the addresses the server can be reached at
func (s *Server) LogURLs(port int) {
	s.logger.Info("Accessible URLs:")
	for _, host := range LocalHosts() {
		s.logger.Info("  http://%s:%d", host, port)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server exited properly")
	return nil
}
