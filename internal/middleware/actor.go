package middleware

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/rbacflow/internal/pkg"
)

const (
	DefaultActorHeader = "X-User-ID"
	actorContextKey    = "actor_id"
)

// actorPattern bounds what an upstream identity provider may send as a
// caller id: printable, no whitespace, at most 255 bytes.
var actorPattern = regexp.MustCompile(`^[A-Za-z0-9._:@|+\-]{1,255}$`)

// Actor returns a gin middleware that reads the caller id from header, as
// set by the authenticating proxy in front of the service. Requests without
// the header proceed anonymously; a malformed value is rejected with 400.
//
// The id is stored in gin.Context under "actor_id" and added to the Go
// context via logger.WithContextAttrs so request logs carry it.
func Actor(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultActorHeader
	}

	return func(c *gin.Context) {
		id := c.GetHeader(header)
		if id == "" {
			c.Next()
			return
		}
		if !actorPattern.MatchString(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, pkg.Response{
				Code:    http.StatusBadRequest,
				Message: "invalid " + header + " header",
				Data:    nil,
			})
			return
		}

		c.Set(actorContextKey, id)
		ctx := logger.WithContextAttrs(c.Request.Context(), slog.String("actor_id", id))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetActorID returns the caller id set by Actor, or "" for anonymous requests.
func GetActorID(c *gin.Context) string {
	if id, exists := c.Get(actorContextKey); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
