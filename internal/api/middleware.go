package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spritzapp/spritz/internal/config"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/wallet"
	"github.com/spritzapp/spritz/pkg/logger"
)

// adminAddressKey is the context key holding the authenticated admin
// address.
const adminAddressKey = "adminAddress"

func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			switch e := err.(type) {
			case *errors.ValidationError:
				logger.Warn("Validation error: %v", e)
				c.JSON(http.StatusBadRequest, gin.H{"error": e.Error()})
			case *errors.NotFoundError:
				logger.Warn("Not found: %v", e)
				c.JSON(http.StatusNotFound, gin.H{"error": e.Error()})
			case *errors.ConflictError:
				logger.Info("Conflict: %v", e)
				c.JSON(http.StatusConflict, gin.H{"error": e.Error()})
			case *errors.SignatureError:
				logger.Warn("Signature error: %v", e)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			case *errors.DatabaseError:
				logger.Error("Database error: %v", e)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			case *errors.APIError:
				logger.Error("API error: %v", e)
				c.JSON(e.StatusCode, gin.H{"error": e.Message})
			default:
				logger.Error("Unexpected error: %v", e)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			c.Abort()
		}
	}
}

// AdminAuthMiddleware gates admin routes on a wallet signature. The caller
// sends its address and a personal_sign signature over the configured
// message; the address must also be on the admin allowlist.
func AdminAuthMiddleware(cfg config.AdminConfig) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		allowed[strings.ToLower(addr)] = true
	}

	return func(c *gin.Context) {
		address := c.GetHeader("X-Admin-Address")
		signature := c.GetHeader("X-Admin-Signature")
		if address == "" || signature == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing admin credentials"})
			return
		}

		normalized, err := wallet.Normalize(address)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin address"})
			return
		}
		if !allowed[normalized] {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not an admin"})
			return
		}

		ok, err := wallet.VerifySignature(normalized, cfg.AuthMessage, signature)
		if err != nil || !ok {
			if err != nil {
				logger.Warn("Admin signature check failed for %s: %v", normalized, err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}

		c.Set(adminAddressKey, normalized)
		c.Next()
	}
}
