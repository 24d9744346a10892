package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orgservice/internal/config"
)

const keyEnrollAttempt = "enroll:attempt:%s:%s"

// EnrollmentLimiter throttles enrollment attempts per (organization, user) so
// enrollment keys cannot be brute forced. A nil or disabled limiter allows
// everything.
type EnrollmentLimiter struct {
	bucket *TokenBucket
	policy *config.PolicyHolder
}

func NewEnrollmentLimiter(bucket *TokenBucket, policy *config.PolicyHolder) *EnrollmentLimiter {
	if bucket == nil {
		return nil
	}
	return &EnrollmentLimiter{bucket: bucket, policy: policy}
}

func (l *EnrollmentLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *EnrollmentLimiter) Allow(ctx context.Context, orgID, userID snowflake.ID) (*RateLimitResult, error) {
	policy := l.enrollmentPolicy()
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true, Limit: policy.AttemptBurst, Remaining: policy.AttemptBurst}, nil
	}
	return l.bucket.Take(ctx, attemptKey(orgID, userID), Spec{Rate: policy.AttemptRate, Burst: policy.AttemptBurst})
}

func (l *EnrollmentLimiter) enrollmentPolicy() config.EnrollmentPolicy {
	if l == nil {
		return config.DefaultMembershipPolicy().Enrollment
	}
	return l.policy.Get().Enrollment
}

func attemptKey(orgID, userID snowflake.ID) string {
	return fmt.Sprintf(keyEnrollAttempt, orgID.String(), userID.String())
}
