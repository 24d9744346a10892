package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgservice/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/orgservice/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonEnrollAttempts = "enroll-attempts"

// EnrollmentRateLimit throttles enrollment attempts per (organization, user)
// before the key is checked.
func (s *Server) EnrollmentRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.enrollmentLimiter.Enabled() {
			c.Next()
			return
		}

		principal, ok := principalFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID, ok := orgIDFromContext(c)
		if !ok {
			AbortWithError(c, invalidRequestError())
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		res, err := s.enrollmentLimiter.Allow(ctx, orgID, principal.UserID)
		if err != nil {
			logger.FromContext(ctx).Warn("enrollment rate limit check failed",
				logger.Membership(orgID, principal.UserID),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retryAfter := int(res.RetryAfter.Seconds() + 0.999)
			if retryAfter < 1 {
				retryAfter = 1
			}
			denyEnrollmentRateLimit(c, endpoint, orgID.String(), retryAfter, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, orgID.String(), s.obsMetrics)
		c.Next()
	}
}

func denyEnrollmentRateLimit(c *gin.Context, endpoint, orgID string, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("enrollment rate limit exceeded",
		zap.String("reason", rateLimitReasonEnrollAttempts),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, orgID, rateLimitReasonEnrollAttempts, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonEnrollAttempts)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint, orgID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, orgID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, orgID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, orgID, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
