package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/civicpulse/errors"
	"github.com/techagentng/civicpulse/server/response"
)

func (s *Server) handleGetUserPoints() gin.HandlerFunc {
	return func(c *gin.Context) {
		points, err := s.PointsService.GetUserPoints(c.Request.Context(), c.Param("userID"))
		if err != nil {
			response.HandleErrors(c, err)
			return
		}
		response.JSON(c, "points retrieved successfully", http.StatusOK, points, nil)
	}
}

func (s *Server) handleGetLeaderboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if err != nil || limit < 0 {
			response.JSON(c, "limit must be a non-negative integer", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}
		board, err := s.PointsService.Leaderboard(c.Request.Context(), limit)
		if err != nil {
			response.HandleErrors(c, err)
			return
		}
		response.JSON(c, "leaderboard retrieved successfully", http.StatusOK, board, nil)
	}
}
