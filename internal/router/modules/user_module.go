package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/cadot-io/user-api/internal/domain/repository"
	handlers "github.com/cadot-io/user-api/internal/interface/http"
	"github.com/cadot-io/user-api/internal/interface/middleware"
	"github.com/cadot-io/user-api/pkg/helpers"
)

// UserModule wires the user HTTP handlers into routes.
// Public: POST /users/, POST /login, POST /login/access-token.
// Authenticated: GET/PUT /users/me, PUT /users/me/password,
// POST /users/me/avatar, GET /users/:id.
// Superuser: GET /users/, GET /users/search, PATCH /users/:id/status.
type UserModule struct {
	Handler *handlers.UserHandler
	Repo    repository.UserRepository
	JWT     *helpers.JWTManager
}

func NewUserModule(h *handlers.UserHandler, repo repository.UserRepository, jwt *helpers.JWTManager) *UserModule {
	return &UserModule{Handler: h, Repo: repo, JWT: jwt}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	rg.POST("/users/", m.Handler.Register)
	rg.POST("/login", m.Handler.Login)
	rg.POST("/login/access-token", m.Handler.LoginAccessToken)

	auth := rg.Group("/")
	auth.Use(middleware.RequireAuth(m.Repo, m.JWT))
	{
		auth.GET("/users/me", m.Handler.Me)
		auth.PUT("/users/me", m.Handler.UpdateMe)
		auth.PUT("/users/me/password", m.Handler.UpdatePassword)
		auth.POST("/users/me/avatar", m.Handler.UploadAvatar)

		admin := auth.Group("/")
		admin.Use(middleware.RequireSuperuser())
		{
			admin.GET("/users/", m.Handler.List)
			admin.GET("/users/search", m.Handler.Search)
			admin.PATCH("/users/:id/status", m.Handler.SetStatus)
		}

		// Registered after /users/me and /users/search so the param route
		// does not shadow them.
		auth.GET("/users/:id", m.Handler.GetByID)
	}
}
