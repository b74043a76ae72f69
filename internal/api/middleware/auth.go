// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"log/slog"
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shipyardci/shipyard/internal/api/models"
	"github.com/shipyardci/shipyard/internal/config"
)

// ResolveAuth picks the effective auth policy for a project: the
// project's own policy if it declares one, otherwise the server-wide
// default.
func ResolveAuth(server config.AuthConfig, project config.AuthConfig) config.AuthConfig {
	if project.IsSet() {
		return project
	}
	return server
}

// RequireAuth returns a middleware enforcing the given policy. A policy
// with an empty Type requires nothing and always passes.
func RequireAuth(policy config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if policy.Type == "" {
			c.Next()
			return
		}

		switch policy.Type {
		case config.AuthTypeToken:
			if !checkTokenAuth(c, policy) {
				deny(c)
				return
			}
		case config.AuthTypeAddress:
			if !checkAddressAuth(c, policy) {
				deny(c)
				return
			}
		case config.AuthTypeBoth:
			if !checkTokenAuth(c, policy) || !checkAddressAuth(c, policy) {
				deny(c)
				return
			}
		default:
			deny(c)
			return
		}

		c.Next()
	}
}

func deny(c *gin.Context) {
	slog.Default().Warn("auth denied",
		"path", c.Request.URL.Path,
		"client_ip", GetClientIP(c),
		"user_agent", GetUserAgent(c),
	)
	models.RespondWithError(c, models.NewUnauthorizedError(
		c.Request.URL.Path,
		"Authentication required",
	))
	c.Abort()
}

// checkTokenAuth matches the Authorization bearer header or a ?token=
// query parameter against the policy's allow-list.
func checkTokenAuth(c *gin.Context, policy config.AuthConfig) bool {
	if token, ok := ExtractBearerToken(c); ok && contains(policy.AllowedTokens, token) {
		return true
	}

	if token := c.Query("token"); token != "" && contains(policy.AllowedTokens, token) {
		return true
	}

	return false
}

// checkAddressAuth matches the caller's remote address against the
// policy's allow-list, by raw IP and, falling back, by hostname string.
func checkAddressAuth(c *gin.Context, policy config.AuthConfig) bool {
	remote := c.ClientIP()
	if remote == "" {
		return false
	}

	if contains(policy.AllowedAddresses, remote) {
		return true
	}

	if ip := net.ParseIP(remote); ip != nil {
		return contains(policy.AllowedAddresses, ip.String())
	}

	return false
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// ExtractBearerToken returns the token from an "Authorization: Bearer
// <token>" header, if present.
func ExtractBearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	return parts[1], true
}

// GetClientIP returns the client IP address from the request.
func GetClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// GetUserAgent returns the user agent from the request.
func GetUserAgent(c *gin.Context) string {
	return c.Request.UserAgent()
}
