package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
)

// Recovery turns a handler panic into a 500 envelope. Panics caused by the
// client going away are logged as warnings and nothing is written.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			l := requestLogger(c)

			if connectionLost(rec) {
				l.Warn().
					Interface("error", rec).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Msg("client connection lost")
				c.Abort()
				return
			}

			l.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("handler panicked")
			c.AbortWithStatusJSON(http.StatusInternalServerError, handler.NewErrorResponse("internal server error"))
		}()
		c.Next()
	}
}

func connectionLost(rec interface{}) bool {
	err, ok := rec.(error)
	if !ok {
		return false
	}
	return errors.Is(err, http.ErrAbortHandler) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
