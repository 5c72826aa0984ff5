package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailgovernor/internal/utils"
)

// OperatorHeaders name the caller acting on the governor, first match wins.
var OperatorHeaders = []string{"X-GOVERNOR-OPERATOR", "X-User-Email", "X-Openline-USERNAME"}

// CustomContextMiddleware adds custom context to all requests
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, header := range OperatorHeaders {
			if value := strings.TrimSpace(c.GetHeader(header)); value != "" {
				c.Set("Operator", value)
				break
			}
		}
		requestId := c.GetHeader("X-Request-Id")
		if requestId == "" {
			requestId = utils.GenerateNanoIDWithPrefix("req", 16)
		}
		c.Set("RequestId", requestId)
		c.Header("X-Request-Id", requestId)

		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
