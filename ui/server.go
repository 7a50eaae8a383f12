package ui

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sentinel/adapters/excel"
	"sentinel/app"
)

// Server is the operator-facing HTTP API over the fleet and the analysis
// pipeline.
type Server struct {
	router   *gin.Engine
	fleet    *app.FleetService
	analysis *app.AnalysisService
	reports  *excel.ReportWriter
	log      *zap.SugaredLogger
	http     *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(fleet *app.FleetService, analysis *app.AnalysisService, log *zap.SugaredLogger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		fleet:    fleet,
		analysis: analysis,
		reports:  excel.NewReportWriter(),
		log:      log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")

	api.GET("/detectors", s.listDetectors)
	api.GET("/detectors/:name", s.getDetector)
	api.POST("/detectors/:name/start", s.startDetector)
	api.POST("/detectors/:name/stop", s.stopDetector)
	api.POST("/detectors/:name/force", s.forceDetector)
	api.POST("/detectors/:name/clear-quarantine", s.clearQuarantine)
	api.POST("/detectors/start-all", s.startAll)
	api.POST("/detectors/stop-all", s.stopAll)

	api.POST("/findings", s.submitFinding)
	api.GET("/findings/:id", s.getFinding)
	api.POST("/findings/:id/analyze", s.analyzeFinding)
	api.GET("/findings-summary", s.triageSummary)

	api.GET("/governor", s.getGovernor)
	api.POST("/governor/reset", s.resetGovernor)

	api.GET("/reports/fleet.xlsx", s.fleetReport)
}

// Run starts the HTTP listener and blocks until it fails or is shut down.
func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("api server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
