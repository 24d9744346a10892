package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MembershipPolicy holds runtime-tunable membership settings loaded from
// membership.yml.
type MembershipPolicy struct {
	Pagination PaginationPolicy `mapstructure:"pagination"`
	Enrollment EnrollmentPolicy `mapstructure:"enrollment"`
}

type PaginationPolicy struct {
	DefaultPageSize int `mapstructure:"defaultPageSize"`
	MaxPageSize     int `mapstructure:"maxPageSize"`
}

// EnrollmentPolicy configures the enrollment attempt token bucket.
// AttemptRate is tokens per second.
type EnrollmentPolicy struct {
	AttemptRate  float64 `mapstructure:"attemptRate"`
	AttemptBurst int     `mapstructure:"attemptBurst"`
}

func DefaultMembershipPolicy() MembershipPolicy {
	return MembershipPolicy{
		Pagination: PaginationPolicy{
			DefaultPageSize: 50,
			MaxPageSize:     200,
		},
		Enrollment: EnrollmentPolicy{
			AttemptRate:  0.2,
			AttemptBurst: 5,
		},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds MembershipPolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy MembershipPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	return newPolicyHolder(log, "/etc/orgservice", ".")
}

func newPolicyHolder(log *zap.Logger, paths ...string) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}

	v := viper.New()
	v.SetConfigName("membership")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("ORGSERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultMembershipPolicy()
	v.SetDefault("membership.pagination.defaultPageSize", defaults.Pagination.DefaultPageSize)
	v.SetDefault("membership.pagination.maxPageSize", defaults.Pagination.MaxPageSize)
	v.SetDefault("membership.enrollment.attemptRate", defaults.Enrollment.AttemptRate)
	v.SetDefault("membership.enrollment.attemptBurst", defaults.Enrollment.AttemptBurst)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	var policy MembershipPolicy
	if err := v.UnmarshalKey("membership", &policy); err != nil {
		return nil, err
	}
	if err := validateMembershipPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !found {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MembershipPolicy
		if err := v.UnmarshalKey("membership", &updated); err != nil {
			log.Warn("membership policy reload failed", zap.Error(err))
			return
		}
		if err := validateMembershipPolicy(updated); err != nil {
			log.Warn("invalid membership policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("membership policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() MembershipPolicy {
	if h == nil {
		return DefaultMembershipPolicy()
	}
	return h.current.Load().(MembershipPolicy)
}

func validateMembershipPolicy(policy MembershipPolicy) error {
	if policy.Pagination.DefaultPageSize <= 0 {
		return errors.New("membership.pagination.defaultPageSize must be positive")
	}
	if policy.Pagination.MaxPageSize < policy.Pagination.DefaultPageSize {
		return errors.New("membership.pagination.maxPageSize must be >= defaultPageSize")
	}
	if policy.Enrollment.AttemptRate <= 0 {
		return errors.New("membership.enrollment.attemptRate must be positive")
	}
	if policy.Enrollment.AttemptBurst <= 0 {
		return errors.New("membership.enrollment.attemptBurst must be positive")
	}
	return nil
}
