package task

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"keywarden/services/apikey"
)

var Module = fx.Module("apikey.task",
	fx.Provide(NewScheduler),
	fx.Invoke(registerHandlers, StartScheduler),
)

func registerHandlers(mux *asynq.ServeMux, svc *apikey.Service) {
	mux.HandleFunc(TypeSweepExpired, HandleSweepExpired(svc))
}
