// Package access answers whether a caller may work in a space. Authentication
// happens upstream; callers arrive identified by the X-User-ID header.
package access

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scrumboard/internal/config"
)

// HeaderUserID carries the authenticated caller id.
const HeaderUserID = "X-User-ID"

const callerKey = "access.caller"

// Role is the relationship of a caller to a space.
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Checker resolves the role of a caller in a space.
type Checker interface {
	Role(ctx context.Context, callerID, spaceID string) (Role, error)
}

// OpenChecker treats every identified caller as a member of every space.
type OpenChecker struct{}

// Role implements Checker.
func (OpenChecker) Role(_ context.Context, callerID, _ string) (Role, error) {
	if callerID == "" {
		return RoleNone, nil
	}
	return RoleMember, nil
}

// StaticChecker resolves roles from the spaces section of the config file.
type StaticChecker struct {
	spaces map[string]config.SpaceAccess
}

// NewStaticChecker builds a checker over the configured spaces.
func NewStaticChecker(spaces map[string]config.SpaceAccess) *StaticChecker {
	return &StaticChecker{spaces: spaces}
}

// Role implements Checker.
func (s *StaticChecker) Role(_ context.Context, callerID, spaceID string) (Role, error) {
	space, ok := s.spaces[spaceID]
	if !ok || callerID == "" {
		return RoleNone, nil
	}
	if space.Owner == callerID {
		return RoleOwner, nil
	}
	if contains(space.Admins, callerID) {
		return RoleAdmin, nil
	}
	if contains(space.Members, callerID) {
		return RoleMember, nil
	}
	return RoleNone, nil
}

// FromConfig picks the static checker when spaces are configured.
func FromConfig(cfg config.Config) Checker {
	if len(cfg.Spaces) == 0 {
		return OpenChecker{}
	}
	return NewStaticChecker(cfg.Spaces)
}

// Middleware rejects requests without a caller (401) or from callers with no
// role in the :space of the route (403).
func Middleware(checker Checker, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if caller == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
			return
		}
		spaceID := c.Param("space")
		role, err := checker.Role(c.Request.Context(), caller, spaceID)
		if err != nil {
			logger.Error("access check failed", slog.String("space", spaceID), slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if role == RoleNone {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this space"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// CallerID returns the caller stored by Middleware.
func CallerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
