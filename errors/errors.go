package errors

import (
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error is an error that carries the HTTP status it should be reported with.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return e.Message
}

// New returns a new *Error.
func New(message string, status int) *Error {
	return &Error{Message: message, Status: status}
}

var (
	ErrNotFound            = New("not found", http.StatusNotFound)
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrConflict            = New("conflict", http.StatusConflict)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	ErrTooManyRequests     = New("too many requests", http.StatusTooManyRequests)
)

// ErrorHandler is the gin-rate-limit hook used when a client exceeds its quota.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"message": fmt.Sprintf("Too many requests. Try again in %s", time.Until(info.ResetTime).Round(time.Second)),
		"errors":  ErrTooManyRequests.Error(),
	})
}
