package server

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	if s.Config.Env == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	// By default gin.DefaultWriter = os.Stdout
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	limitWrites := s.limitRatePerClient()

	apirouter := router.Group("/api/v1")
	apirouter.POST("/reports", limitWrites, limitBodySize(MaxReportBodySize), s.handleSubmitReport())
	apirouter.POST("/reports/:id/verify", limitWrites, s.handleVerifyReport())
	apirouter.GET("/reports", s.handleListReports())
	apirouter.GET("/reports/live", s.handleLiveReports())
	apirouter.GET("/reports/:id", s.handleGetReport())
	apirouter.GET("/reports/:id/escalation", s.handleGetEscalation())
	apirouter.GET("/users/:userID/points", s.handleGetUserPoints())
	apirouter.GET("/points/leaderboard", s.handleGetLeaderboard())
}
