package api

import (
	"fmt"
	"net/http"
	"strconv"

	"conjoint/app"
	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/domain/run"
	"conjoint/internal/config"
	"conjoint/ports"

	"github.com/gin-gonic/gin"
)

// AnalysisBody is the request of POST /api/analyses. Data is the long-format
// table; when omitted the study's data_file setting is read.
type AnalysisBody struct {
	Study config.StudyDocument `json:"study"`
	Data  *conjoint.Table      `json:"data,omitempty"`
}

func (s *Server) handleCreateAnalysis(c *gin.Context) {
	var body AnalysisBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	study, err := body.Study.Study("")
	if err != nil {
		s.respondError(c, err)
		return
	}

	req := app.AnalysisRequest{Study: study, Table: body.Data}
	if req.Table == nil && study.DataFile != "" && s.deps.Sources != nil {
		req.Source = s.deps.Sources(study.DataFile)
	}

	ar, err := s.deps.Analyses.Run(c.Request.Context(), req)
	if err != nil {
		status, resp := newErrorResponse(err)
		if ar != nil {
			resp.RunID = ar.ID
		}
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusCreated, ar)
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	filters := ports.RunFilters{
		Study:  c.Query("study"),
		Status: run.Status(c.Query("status")),
	}
	var err error
	if filters.Limit, err = queryInt(c, "limit"); err != nil {
		badRequest(c, err.Error())
		return
	}
	if filters.Offset, err = queryInt(c, "offset"); err != nil {
		badRequest(c, err.Error())
		return
	}

	runs, err := s.deps.Runs.List(c.Request.Context(), filters)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if runs == nil {
		runs = []run.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

// runID parses the :id parameter, answering 400 when it is not a run id.
func runID(c *gin.Context) (core.RunID, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return id, true
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	ar, err := s.deps.Runs.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ar)
}

func (s *Server) handleDeleteAnalysis(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	if err := s.deps.Runs.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleReport renders a completed run as markdown or, by default, HTML.
func (s *Server) handleReport(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	if s.deps.Renderer == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Code: "REPORT_UNAVAILABLE", Error: "no report renderer configured"})
		return
	}
	report, err := s.deps.Simulations.Report(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if c.Query("format") == "markdown" {
		md, err := s.deps.Renderer.Markdown(report)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", md)
		return
	}
	page, err := s.deps.Renderer.HTML(report)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// storedReport loads the report behind :id, writing the error response when
// it cannot be used.
func (s *Server) storedReport(c *gin.Context) (*conjoint.AnalysisReport, bool) {
	id, ok := runID(c)
	if !ok {
		return nil, false
	}
	report, err := s.deps.Simulations.Report(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return report, true
}

func (s *Server) handleShares(c *gin.Context) {
	var req app.SharesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	report, ok := s.storedReport(c)
	if !ok {
		return
	}
	res, err := s.deps.Simulations.Shares(report, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSensitivity(c *gin.Context) {
	var req app.SensitivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	report, ok := s.storedReport(c)
	if !ok {
		return
	}
	res, err := s.deps.Simulations.Sensitivity(c.Request.Context(), report, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleOptimize(c *gin.Context) {
	var req app.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	report, ok := s.storedReport(c)
	if !ok {
		return
	}
	res, err := s.deps.Simulations.Optimize(c.Request.Context(), report, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
