package routers

import (
	"github.com/gin-gonic/gin"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/middlewares"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/routers/v1/restful"
)

type RootRouter struct {
	appState *AppState
}

func NewRootRouter(appState *AppState) *RootRouter {
	return &RootRouter{
		appState: appState,
	}
}

func (rr *RootRouter) InitRouters(engine *gin.Engine) {
	rootAPIRouter := engine.Group("/api")
	v1Router := rootAPIRouter.Group("/v1")
	{
		healthcheckRouter := restful.NewHealthcheckRouter(rr.appState.GetV1RestState().GetHealthcheckService())
		healthcheckRouter.Routes(v1Router)
	}

	authenticated := v1Router.Group("", middlewares.AuthMW(rr.appState.GetUserLookup()))
	{
		subscriptionRouter := restful.NewSubscriptionRouter(rr.appState.GetV1RestState().GetSubscriptionService())
		subscriptionRouter.Routes(authenticated)

		sweepRouter := restful.NewSweepRouter(rr.appState.GetV1RestState().GetSweepService())
		sweepRouter.Routes(authenticated)
	}
}
