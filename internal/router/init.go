package router

import (
	accountapp "account-service/internal/application"
	"account-service/internal/container"
	repoaccount "account-service/internal/domain/repository"
	pginfra "account-service/internal/infrastructure/postgres"
	handlers "account-service/internal/interface/http"
	"account-service/internal/router/modules"
)

type AccountModuleDeps struct {
	Repo    repoaccount.AccountRepository
	Service *accountapp.Service
	Handler *handlers.AccountHandler
}

func buildAccountDeps() AccountModuleDeps {
	repo := pginfra.NewAccountRepository(container.GetPGPool())

	service := accountapp.NewService(
		repo,
		container.GetJWT(),
		container.GetRedis(),
		container.GetLogger(),
		container.GetES(),
		container.GetConfig().ESAccountsIndex,
	)

	handler := handlers.NewAccountHandler(service, container.GetLogger())

	return AccountModuleDeps{
		Repo:    repo,
		Service: service,
		Handler: handler,
	}
}

// InitModules initializes all application modules and registers them with the router registry.
// Called once during startup.
func InitModules(r *Registry) {
	deps := buildAccountDeps()
	r.Add(modules.NewAccountModule(deps.Handler, container.GetJWT()))
	if container.GetConfig().DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
