package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"hospital-assistant/pkg"
)

func newProblem(status int, detail, instance string) *pkg.Problem {
	return &pkg.Problem{
		Type:     fmt.Sprintf("https://citygeneral.example/errors/%d", status),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// sendProblem writes an RFC 7807 body and aborts the chain.
func sendProblem(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, newProblem(status, detail, c.Request.URL.Path))
}
