package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cadot-io/user-api/internal/apperrors"
	"github.com/cadot-io/user-api/internal/domain/entity"
	"github.com/cadot-io/user-api/internal/domain/repository"
	"github.com/cadot-io/user-api/pkg/helpers"
	"github.com/cadot-io/user-api/pkg/response"
)

// CtxUserKey is the gin context key under which the authenticated user is
// stored.
const CtxUserKey = "currentUser"

// RequireAuth translates the bearer token on the request into an
// authenticated user. Each failure mode is rejected with its own error
// kind: missing token, malformed token, bad signature, expired token,
// unknown subject, inactive subject.
func RequireAuth(repo repository.UserRepository, jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			response.AbortWith(c, err)
			return
		}
		claims, err := jwt.Parse(token)
		if err != nil {
			response.AbortWith(c, err)
			return
		}
		uid, err := claims.UserID()
		if err != nil {
			response.AbortWith(c, err)
			return
		}
		u, err := repo.GetByID(c.Request.Context(), uid)
		if err != nil {
			// An unknown subject is an auth failure, not a 404.
			if apperrors.KindOf(err) == apperrors.KindNotFound {
				response.AbortWith(c, apperrors.New(apperrors.KindAuthentication, "token subject not found"))
				return
			}
			response.AbortWith(c, err)
			return
		}
		if !u.IsActive {
			response.AbortWith(c, apperrors.ErrInactiveUser)
			return
		}
		c.Set(CtxUserKey, u)
		c.Next()
	}
}

// RequireSuperuser rejects authenticated callers without the superuser
// flag. Must run after RequireAuth.
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			response.AbortWith(c, apperrors.ErrTokenMissing)
			return
		}
		if !u.IsSuperuser {
			response.AbortWith(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user placed in the context by
// RequireAuth, or nil.
func CurrentUser(c *gin.Context) *entity.User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*entity.User)
	return u
}

func bearerToken(c *gin.Context) (string, error) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", apperrors.ErrTokenMissing
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.ErrTokenMalformed
	}
	return strings.TrimSpace(parts[1]), nil
}
