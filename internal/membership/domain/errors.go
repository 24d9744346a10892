package domain

import "errors"

var (
	ErrOrganizationNotFound  = errors.New("organization_not_found")
	ErrNotAMember            = errors.New("not_a_member")
	ErrEnrollmentDisabled    = errors.New("enrollment_disabled")
	ErrInvalidEnrollmentKey  = errors.New("invalid_enrollment_key")
	ErrAlreadyEnrolled       = errors.New("already_enrolled")
	ErrInvalidOperation      = errors.New("invalid_operation")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidUser           = errors.New("invalid_user")
	ErrTooManyEnrollAttempts = errors.New("too_many_enrollment_attempts")
)
