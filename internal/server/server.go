package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgservice/internal/auth/token"
	"github.com/smallbiznis/orgservice/internal/authorization"
	"github.com/smallbiznis/orgservice/internal/config"
	"github.com/smallbiznis/orgservice/internal/membership"
	membershipdomain "github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/internal/observability"
	obsmiddleware "github.com/smallbiznis/orgservice/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/orgservice/internal/observability/metrics"
	obstracing "github.com/smallbiznis/orgservice/internal/observability/tracing"
	"github.com/smallbiznis/orgservice/internal/organization"
	organizationdomain "github.com/smallbiznis/orgservice/internal/organization/domain"
	"github.com/smallbiznis/orgservice/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	token.Module,
	authorization.Module,
	ratelimit.Module,
	membership.Module,
	organization.Module,
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", httpMetrics.Handler())

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine            *gin.Engine
	cfg               config.Config
	log               *zap.Logger
	verifier          *token.Verifier
	membershipSvc     membershipdomain.Service
	organizationSvc   organizationdomain.Service
	enrollmentLimiter *ratelimit.EnrollmentLimiter
	obsMetrics        *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	Log               *zap.Logger
	Verifier          *token.Verifier
	MembershipSvc     membershipdomain.Service
	OrganizationSvc   organizationdomain.Service
	EnrollmentLimiter *ratelimit.EnrollmentLimiter `optional:"true"`
	ObsMetrics        *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		log:               p.Log.Named("http"),
		verifier:          p.Verifier,
		membershipSvc:     p.MembershipSvc,
		organizationSvc:   p.OrganizationSvc,
		enrollmentLimiter: p.EnrollmentLimiter,
		obsMetrics:        p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Organizations --------
	api.GET("/organizations", s.ListMyOrganizations)
	api.POST("/organizations", s.CreateOrganization)

	org := api.Group("/organizations/:orgId", s.OrgContext())
	{
		org.GET("", s.GetOrganization)
		org.PATCH("", s.UpdateOrganization)
		org.DELETE("", s.DeleteOrganization)

		// -------- Enrollment --------
		org.POST("/enroll", s.EnrollmentRateLimit(), s.Enroll)
		org.POST("/leave", s.LeaveOrganization)

		// -------- Members --------
		// verified and unverified lists stay separate routes with separate gates
		org.GET("/members", s.ListVerifiedMembers)
		org.GET("/members/unverified", s.ListUnverifiedMembers)
		org.GET("/members/me", s.GetMyMembership)
		org.PUT("/members/:userId/role", s.AssignRole)
		org.PUT("/members/:userId/verification", s.SetVerification)
		org.DELETE("/members/:userId", s.RemoveMember)

		org.POST("/presidency", s.TransferPresidency)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
