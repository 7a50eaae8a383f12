package ui

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sentinel/domain/core"
	apperrors "sentinel/internal/errors"
)

func (s *Server) listDetectors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"detectors": s.fleet.Detectors()})
}

func (s *Server) getDetector(c *gin.Context) {
	det, err := s.fleet.Detector(c.Param("name"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, det)
}

func (s *Server) startDetector(c *gin.Context) {
	if err := s.fleet.Start(c.Param("name")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) stopDetector(c *gin.Context) {
	if err := s.fleet.Stop(c.Param("name")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) forceDetector(c *gin.Context) {
	outcome, err := s.fleet.Force(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) clearQuarantine(c *gin.Context) {
	if err := s.fleet.ClearQuarantine(c.Param("name")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) startAll(c *gin.Context) {
	s.fleet.StartAll()
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) stopAll(c *gin.Context) {
	s.fleet.StopAll()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

type submitFindingRequest struct {
	Detector    string         `json:"detector" binding:"required"`
	Title       string         `json:"title" binding:"required"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Confidence  float64        `json:"confidence"`
	Symbol      string         `json:"symbol"`
	MarketType  string         `json:"market_type"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) submitFinding(c *gin.Context) {
	var req submitFindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	finding, err := s.analysis.Submit(c.Request.Context(), core.Finding{
		Detector:    req.Detector,
		Title:       req.Title,
		Description: req.Description,
		Severity:    core.ParseSeverity(req.Severity),
		Confidence:  req.Confidence,
		Symbol:      req.Symbol,
		MarketType:  req.MarketType,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, finding)
}

func (s *Server) getFinding(c *gin.Context) {
	finding, err := s.analysis.Finding(c.Request.Context(), core.FindingID(c.Param("id")))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, finding)
}

func (s *Server) analyzeFinding(c *gin.Context) {
	force := c.Query("force") == "true"
	finding, err := s.analysis.Analyze(c.Request.Context(), core.FindingID(c.Param("id")), force)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, finding)
}

func (s *Server) triageSummary(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	summary, err := s.analysis.Summary(c.Request.Context(), limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getGovernor(c *gin.Context) {
	c.JSON(http.StatusOK, s.fleet.Governor())
}

func (s *Server) resetGovernor(c *gin.Context) {
	c.JSON(http.StatusOK, s.fleet.ResetGovernor(c.Request.Context()))
}

func (s *Server) fleetReport(c *gin.Context) {
	summary, err := s.analysis.Summary(c.Request.Context(), 50)
	if err != nil {
		s.renderError(c, err)
		return
	}
	f, err := s.reports.FleetReport(s.fleet.Detectors(), s.fleet.Governor(), summary)
	if err != nil {
		s.renderError(c, err)
		return
	}
	defer f.Close()

	filename := "fleet-" + time.Now().Format("20060102-150405") + ".xlsx"
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		s.log.Errorw("report write failed", "error", err)
	}
}

// renderError maps domain errors onto HTTP statuses and AppError codes.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := apperrors.GetCode(err)
	switch {
	case errors.Is(err, core.ErrDetectorNotFound), errors.Is(err, core.ErrFindingNotFound):
		status, code = http.StatusNotFound, apperrors.CodeNotFound
	case errors.Is(err, core.ErrDetectorBusy):
		status, code = http.StatusConflict, apperrors.CodeBusy
	case errors.Is(err, core.ErrFleetPaused):
		status, code = http.StatusConflict, apperrors.CodeFleetPaused
	case errors.Is(err, core.ErrInactive):
		status, code = http.StatusConflict, apperrors.CodeInactive
	case errors.Is(err, core.ErrQuarantined):
		status, code = http.StatusLocked, apperrors.CodeQuarantined
	case errors.Is(err, core.ErrDuplicateDetector), errors.Is(err, core.ErrSelfBackup),
		errors.Is(err, core.ErrBackupCycle), errors.Is(err, core.ErrInvalidInterval):
		status, code = http.StatusBadRequest, apperrors.CodeRegistration
	}
	if status == http.StatusInternalServerError {
		s.log.Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
