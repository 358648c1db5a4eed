/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"milestone-escrow-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const actorKey = "actor"

// SessionClaims is the bearer token payload issued by the session service.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies the HS256 bearer token and attaches the actor to
// the request context.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			respondError(c, fmt.Errorf("%w: missing bearer token", models.ErrUnauthorized))
			c.Abort()
			return
		}

		actor, err := s.parseToken(tokenString)
		if err != nil {
			zap.L().Debug("Rejected session token", zap.Error(err))
			respondError(c, err)
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(models.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func (s *Server) parseToken(tokenString string) (models.Actor, error) {
	if len(s.jwtSecret) == 0 {
		return models.Actor{}, fmt.Errorf("%w: session verification not configured", models.ErrUnauthorized)
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return models.Actor{}, fmt.Errorf("%w: invalid subject claim", models.ErrUnauthorized)
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: invalid role claim", models.ErrUnauthorized)
	}
	return models.Actor{UserId: claims.Subject, Role: role}, nil
}

// RequireRole rejects callers whose session role is not in roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		respondError(c, fmt.Errorf("%w: role %s may not access this resource", models.ErrForbidden, actor.Role))
		c.Abort()
	}
}

// IssueToken signs a session token. Sessions are normally issued by the
// session service; operators use this for tooling.
func IssueToken(secret string, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}
