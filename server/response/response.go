package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/civicpulse/errors"
)

// JSON writes the standard response envelope. A nil err marks the response successful.
func JSON(c *gin.Context, message string, status int, data interface{}, err error) {
	body := gin.H{
		"success": err == nil && status < http.StatusBadRequest,
		"message": message,
		"data":    data,
	}
	if err != nil {
		body["errors"] = err.Error()
	}
	c.JSON(status, body)
}

// HandleErrors maps an error to its status. *errs.Error keeps its own status,
// anything else is treated as internal.
func HandleErrors(c *gin.Context, err error) {
	var e *errs.Error
	if errors.As(err, &e) {
		JSON(c, "", e.Status, nil, e)
		return
	}
	JSON(c, "", http.StatusInternalServerError, nil, err)
}
