package domain

import "errors"

var (
	ErrInvalidName                = errors.New("invalid_name")
	ErrInvalidVisibility          = errors.New("invalid_visibility")
	ErrEnrollmentKeyRequired      = errors.New("enrollment_key_required")
	ErrInvalidEnrollmentKeyFormat = errors.New("invalid_enrollment_key_format")
	ErrOrganizationExists         = errors.New("organization_exists")
	ErrInvalidOrganization        = errors.New("invalid_organization")
)
