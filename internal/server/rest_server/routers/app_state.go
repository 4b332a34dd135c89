package routers

import (
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/middlewares"
	"github.com/okieraised/thermostat-alerts/internal/server/rest_server/services/v1/restful"
)

type V1Rest struct {
	healthcheck   restful.IHealthcheckService
	subscriptions restful.ISubscriptionService
	sweeps        restful.ISweepService
}

func NewV1RestState() *V1Rest {
	return &V1Rest{}
}

func (svc *V1Rest) SetHealthcheckService(healthcheck restful.IHealthcheckService) {
	svc.healthcheck = healthcheck
}

func (svc *V1Rest) GetHealthcheckService() restful.IHealthcheckService {
	return svc.healthcheck
}

func (svc *V1Rest) SetSubscriptionService(subscriptions restful.ISubscriptionService) {
	svc.subscriptions = subscriptions
}

func (svc *V1Rest) GetSubscriptionService() restful.ISubscriptionService {
	return svc.subscriptions
}

func (svc *V1Rest) SetSweepService(sweeps restful.ISweepService) {
	svc.sweeps = sweeps
}

func (svc *V1Rest) GetSweepService() restful.ISweepService {
	return svc.sweeps
}

type AppState struct {
	v1Rest *V1Rest
	users  middlewares.UserLookup
}

func NewAppState() *AppState {
	return &AppState{}
}

func (svc *AppState) SetV1RestState(v1Rest *V1Rest) {
	svc.v1Rest = v1Rest
}

func (svc *AppState) GetV1RestState() *V1Rest {
	return svc.v1Rest
}

// SetUserLookup sets the store used to authenticate callers.
func (svc *AppState) SetUserLookup(users middlewares.UserLookup) {
	svc.users = users
}

func (svc *AppState) GetUserLookup() middlewares.UserLookup {
	return svc.users
}
