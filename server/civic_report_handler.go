package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/civicpulse/errors"
	"github.com/techagentng/civicpulse/models"
	"github.com/techagentng/civicpulse/server/response"
	"github.com/techagentng/civicpulse/services"
)

func decode(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return errs.New(err.Error(), http.StatusBadRequest)
	}
	return nil
}

// statusFor maps lifecycle errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrReportNotFound), errors.Is(err, services.ErrEscalationNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyVerified), errors.Is(err, services.ErrReportClosed):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrInvalidImage), errors.Is(err, services.ErrInvalidFilter):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeLifecycleResponse(c *gin.Context, resp *models.CivicReportResponse, okStatus int) {
	if !resp.Success {
		response.JSON(c, resp.Message, statusFor(resp.Err), resp, resp.Err)
		return
	}
	response.JSON(c, resp.Message, okStatus, resp, nil)
}

func (s *Server) handleSubmitReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateCivicReportRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "invalid report payload", http.StatusBadRequest, nil, err)
			return
		}

		resp := s.CivicReportService.SubmitReport(c.Request.Context(), &req)
		if !resp.Success {
			log.Printf("report submission by %s failed: %s", req.UserID, resp.Message)
		}
		writeLifecycleResponse(c, resp, http.StatusCreated)
	}
}

func (s *Server) handleVerifyReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.VerifyCivicReportRequest
		if err := decode(c, &req); err != nil {
			response.JSON(c, "invalid verification payload", http.StatusBadRequest, nil, err)
			return
		}
		req.ReportID = c.Param("id")

		resp := s.CivicReportService.VerifyReport(c.Request.Context(), &req)
		writeLifecycleResponse(c, resp, http.StatusOK)
	}
}

func (s *Server) handleGetReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := s.CivicReportService.GetReport(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.JSON(c, "Report not found", statusFor(err), nil, err)
			return
		}
		response.JSON(c, "report retrieved successfully", http.StatusOK, report, nil)
	}
}

func (s *Server) handleListReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.ReportFilter{
			Status:   models.ReportStatus(c.Query("status")),
			Category: models.Category(c.Query("category")),
		}
		if limit := c.Query("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 0 {
				response.JSON(c, "limit must be a non-negative integer", http.StatusBadRequest, nil, errs.ErrBadRequest)
				return
			}
			filter.Limit = n
		}

		reports, err := s.CivicReportService.ListReports(c.Request.Context(), filter)
		if err != nil {
			response.JSON(c, "unable to list reports", statusFor(err), nil, err)
			return
		}
		response.JSON(c, "reports retrieved successfully", http.StatusOK, gin.H{
			"reports": reports,
			"count":   len(reports),
		}, nil)
	}
}

func (s *Server) handleGetEscalation() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := s.CivicReportService.GetEscalation(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.JSON(c, "report has not been escalated", statusFor(err), nil, err)
			return
		}
		response.JSON(c, "escalation retrieved successfully", http.StatusOK, record, nil)
	}
}
