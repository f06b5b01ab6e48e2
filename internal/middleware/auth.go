package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PATILYASHH/SwiftChat/internal/models"
	"github.com/PATILYASHH/SwiftChat/internal/repositories"
	"github.com/PATILYASHH/SwiftChat/internal/session"
)

// AuthMiddleware validates the Authorization header and resolves the token's
// username to a local user row, provisioning one the first time a username is
// seen. The user id is stored on the gin context as "userID".
func AuthMiddleware(verifier session.Verifier, users repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		user, err := ResolveUser(c.Request.Context(), verifier, users, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("username", user.Username)
		c.Next()
	}
}

// ResolveUser verifies a raw token and returns the matching user, creating
// the row when the username has never been seen.
func ResolveUser(ctx context.Context, verifier session.Verifier, users repositories.UserRepository, token string) (models.User, error) {
	username, err := verifier.Verify(token)
	if err != nil {
		return models.User{}, err
	}

	user, err := users.GetUserByUsername(ctx, username)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return users.CreateUser(ctx, username)
	}
	return user, err
}
