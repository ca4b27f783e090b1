package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/http/response"
	"github.com/poldracklab/cogat/internal/platform/ctxutil"
	"github.com/poldracklab/cogat/internal/platform/logger"
)

// ActorClaims is the token body issued by the account system. Subject holds
// the platform user id recorded on CREATED/UPDATED edges.
type ActorClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type ActorMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewActorMiddleware(log *logger.Logger, secret string) *ActorMiddleware {
	return &ActorMiddleware{log: log.With("Middleware", "ActorMiddleware"), secret: []byte(secret)}
}

// AttachActor resolves the bearer token, when one is sent, into an actor on
// the request context. Anonymous requests pass through untouched.
func (am *ActorMiddleware) AttachActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			c.Next()
			return
		}
		actor, err := am.parse(tokenString)
		if err != nil {
			am.log.Debug("rejecting token", "error", err)
			c.Abort()
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireActor rejects requests that carry no valid actor.
func (am *ActorMiddleware) RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ctxutil.GetActor(c.Request.Context()).Valid() {
			c.Abort()
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing or invalid token"))
			return
		}
		c.Next()
	}
}

func (am *ActorMiddleware) parse(tokenString string) (*atlas.Actor, error) {
	if len(am.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*ActorClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid or expired token")
	}
	actor := &atlas.Actor{ID: strings.TrimSpace(claims.Subject), Username: claims.Username}
	if !actor.Valid() {
		return nil, errors.New("token has no subject")
	}
	return actor, nil
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
