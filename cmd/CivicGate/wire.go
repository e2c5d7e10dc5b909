//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"CivicGate/internal/biz"
	"CivicGate/internal/conf"
	"CivicGate/internal/data"
	"CivicGate/internal/server"
	"CivicGate/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Engines, *conf.CircuitBreaker, *conf.Audit,
	*conf.RateLimit, *conf.Cors, *conf.Auth, *conf.Health, service.BuildInfo, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		NewHealthSweep,
		newApp,
	))
}
