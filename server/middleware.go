package server

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/civicpulse/errors"
	"github.com/techagentng/civicpulse/server/response"
)

// MaxReportBodySize bounds the JSON body of a report submission, image included.
const MaxReportBodySize = 32 << 20

// limitRatePerClient throttles write endpoints per client IP. A zero limit
// disables throttling.
func (s *Server) limitRatePerClient() gin.HandlerFunc {
	if s.Config.RateLimitPerMinute == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: s.Config.RateLimitPerMinute,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errs.ErrorHandler,
		KeyFunc:      keyFunc,
	})
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func limitBodySize(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			respondAndAbort(c, "request body too large", http.StatusRequestEntityTooLarge, nil,
				errs.New("request body too large", http.StatusRequestEntityTooLarge))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// respondAndAbort calls response.JSON and aborts the Context
func respondAndAbort(c *gin.Context, message string, status int, data interface{}, e *errs.Error) {
	response.JSON(c, message, status, data, e)
	c.Abort()
}
