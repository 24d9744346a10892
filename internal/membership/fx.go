package membership

import (
	"github.com/smallbiznis/orgservice/internal/membership/event"
	"github.com/smallbiznis/orgservice/internal/membership/repository"
	"github.com/smallbiznis/orgservice/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(event.NewOutboxPublisher),
	fx.Provide(service.New),
)
