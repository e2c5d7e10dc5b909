package server

import (
	"CivicGate/internal/conf"
	"CivicGate/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewGRPCServer, NewHTTPServer, NewProxy)

func newErrorEncoder(logger log.Logger) http.EncodeErrorFunc {
	return service.NewErrorEncoder(logger)
}

func jwtSecret(a *conf.Auth) string {
	if a == nil || a.Jwt == nil {
		return ""
	}
	return a.Jwt.Secret
}
