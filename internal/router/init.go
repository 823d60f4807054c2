package router

import (
	userapp "github.com/cadot-io/user-api/internal/application"
	"github.com/cadot-io/user-api/internal/container"
	pginfra "github.com/cadot-io/user-api/internal/infrastructure/postgres"
	handlers "github.com/cadot-io/user-api/internal/interface/http"
	"github.com/cadot-io/user-api/internal/router/modules"
)

func buildUserModule() Module {
	cfg := container.GetConfig()

	repo := pginfra.NewUserRepository(container.GetPGPool())

	service := userapp.NewService(repo, container.GetHasher(), container.GetJWT(), container.GetLogger())
	service.Redis = container.GetRedis()
	service.CacheTTL = cfg.ProfileCacheTTL
	service.GCS = container.GetGCS()
	service.GCSBucket = cfg.GCSBucket
	service.ES = container.GetES()
	service.ESUsersIndex = cfg.ESUsersIndex
	service.Pub = container.GetRabbitPub()
	service.AppName = cfg.AppName

	handler := handlers.NewUserHandler(service, container.GetLogger())

	return modules.NewUserModule(handler, repo, container.GetJWT())
}

// InitModules initializes all application modules and registers them with
// the router registry. Called once during startup.
func InitModules(r *Registry) {
	r.Add(buildUserModule())
	if container.GetConfig().DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
