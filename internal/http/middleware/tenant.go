package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fredpottier/kbgraph/internal/http/response"
)

const headerTenantID = "X-Tenant-Id"

// TenantRequired rejects requests without a tenant header. Every data row is
// tenant scoped, so there is no sensible default.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(headerTenantID))
		if tenant == "" {
			response.RespondError(c, http.StatusBadRequest, "missing_tenant", fmt.Errorf("%s header required", headerTenantID))
			c.Abort()
			return
		}
		c.Set("tenant_id", tenant)
		c.Next()
	}
}

// TenantID reads the tenant set by TenantRequired.
func TenantID(c *gin.Context) string {
	return c.GetString("tenant_id")
}
