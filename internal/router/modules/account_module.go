package modules

import (
	"github.com/gin-gonic/gin"

	handlers "account-service/internal/interface/http"
	"account-service/internal/interface/middleware"
	"account-service/pkg/helpers"
)

// AccountModule wires account HTTP handlers and the auth gate into routes.
// Public: POST /api/auth/register, POST /api/auth/login
// Protected: GET /api/auth/me, PATCH /api/auth/me, GET /api/auth/accounts/search
type AccountModule struct {
	Handler *handlers.AccountHandler
	JWT     *helpers.JWTManager
}

func NewAccountModule(h *handlers.AccountHandler, jwt *helpers.JWTManager) *AccountModule {
	return &AccountModule{Handler: h, JWT: jwt}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/register", m.Handler.Register)
	rg.POST("/auth/login", m.Handler.Login)

	auth := rg.Group("/auth")
	auth.Use(middleware.Auth(m.JWT))
	{
		auth.GET("/me", m.Handler.GetMe)
		auth.PATCH("/me", m.Handler.UpdateMe)
		auth.GET("/accounts/search", m.Handler.Search)
	}
}
