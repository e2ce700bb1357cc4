package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"go-screening-backend/internal/delivery/http/response"
	"go-screening-backend/internal/domain"
	"go-screening-backend/pkg/auth"
	"go-screening-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

const claimsKey = "RecruiterClaims"

// AuthMiddleware accepts a bearer header, the auth_token cookie, or an
// access_token query parameter (EventSource cannot set headers).
func AuthMiddleware(verifier *auth.Verifier, audit *security.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		// 1. Try to get token from Header
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else if cookie, err := c.Cookie("auth_token"); err == nil && cookie != "" {
			// 2. Cookie
			tokenString = cookie
		} else if c.Request.Method == http.MethodGet {
			// 3. Query, read-only requests only
			tokenString = c.Query("access_token")
		}

		if tokenString == "" {
			response.Abort(c, http.StatusUnauthorized, "Authorization header or auth_token cookie required")
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			audit.Log(c.Request.Context(), security.SecurityEvent{
				Event:     security.EventUnauthorizedAccess,
				IP:        c.ClientIP(),
				UserAgent: c.GetHeader("User-Agent"),
				RequestID: c.GetString(string(domain.KeyRequestID)),
				Details:   map[string]interface{}{"reason": err.Error()},
			})
			response.Abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		role := claims.Role
		if role == "" {
			role = "recruiter"
		}
		c.Set(string(domain.KeyRecruiterID), claims.Subject)
		c.Set(string(domain.KeyRecruiterEmail), claims.Email)
		c.Set(string(domain.KeyRecruiterRole), role)
		c.Set(claimsKey, claims)

		c.Next()
	}
}

// JobScope resolves :jobId and rejects callers whose token does not cover it.
// Downstream handlers read the id with JobID.
func JobScope(audit *security.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := strconv.ParseInt(c.Param("jobId"), 10, 64)
		if err != nil || jobID <= 0 {
			response.Abort(c, http.StatusBadRequest, "Invalid job id")
			return
		}

		claims, _ := c.Get(claimsKey)
		rc, ok := claims.(*auth.RecruiterClaims)
		if !ok || !rc.CanAccessJob(jobID) {
			subject := ""
			if rc != nil {
				subject = rc.Subject
			}
			audit.Log(c.Request.Context(), security.SecurityEvent{
				Event:        security.EventScopeDenied,
				SubjectType:  "job",
				SubjectValue: strconv.FormatInt(jobID, 10),
				IP:           c.ClientIP(),
				RequestID:    c.GetString(string(domain.KeyRequestID)),
				Details:      map[string]interface{}{"user": subject},
			})
			response.Abort(c, http.StatusForbidden, "No access to this job")
			return
		}

		c.Set(string(domain.KeyJobID), jobID)
		c.Next()
	}
}

// JobID returns the id JobScope stored on the context.
func JobID(c *gin.Context) int64 {
	return c.GetInt64(string(domain.KeyJobID))
}
