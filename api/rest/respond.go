package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
)

const defaultPageSize = 50

// fail renders an operation error. Internal causes are logged and never
// leave the process.
func fail(c *gin.Context, log *zap.Logger, err error) {
	status := social.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.Int64("user_id", mw.GetUserID(c)),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": social.PublicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// paramID parses a positive integer path parameter, answering 400 itself
// when it is malformed.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// page reads the ?before= and ?limit= cursor of list endpoints.
func page(c *gin.Context) (beforeID int64, limit int) {
	beforeID, _ = strconv.ParseInt(c.Query("before"), 10, 64)
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	return beforeID, limit
}
