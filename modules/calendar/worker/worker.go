package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"familycal/core/logger"
	"familycal/modules/calendar/repository"
	"familycal/modules/calendar/service"
)

// TaskSyncAll is the periodic sweep syncing every user's connections.
const TaskSyncAll = "calendar:sync_all"

// SyncWorker handles background calendar tasks. The sweep reuses the same
// orchestrator the API uses, so rate limiting and partial-failure isolation
// apply to scheduled syncs exactly as they do to manual ones.
type SyncWorker struct {
	service service.CalendarService
	repo    repository.CalendarRepository
}

func NewSyncWorker(service service.CalendarService, repo repository.CalendarRepository) *SyncWorker {
	return &SyncWorker{service: service, repo: repo}
}

func (w *SyncWorker) HandleSyncAll(ctx context.Context, _ *asynq.Task) error {
	userIDs, err := w.repo.ListUserIDsWithConnections(ctx)
	if err != nil {
		logger.Error("SyncWorker:HandleSyncAll:ListUsers:Error", "error", err)
		return err
	}

	logger.Info("SyncWorker:HandleSyncAll:Start", "users", len(userIDs))
	for _, userID := range userIDs {
		results, appErr := w.service.SyncAllCalendars(ctx, userID)
		if appErr != nil {
			logger.Error("SyncWorker:HandleSyncAll:User:Error", "user_id", userID, "error", appErr)
			continue
		}
		for _, result := range results {
			if result.Error != "" {
				logger.Warn("SyncWorker:HandleSyncAll:ConnectionError",
					"user_id", userID, "connection_id", result.ConnectionID, "error", result.Error)
			}
		}
	}
	logger.Info("SyncWorker:HandleSyncAll:Done", "users", len(userIDs))
	return nil
}

// Run starts the asynq server and the scheduler enqueueing the sweep on the
// configured cron spec. Blocks until the server stops.
func Run(redisOpt asynq.RedisClientOpt, cronSpec string, worker *SyncWorker) error {
	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(cronSpec, asynq.NewTask(TaskSyncAll, nil)); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Shutdown()

	srv := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 1})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSyncAll, worker.HandleSyncAll)

	logger.Info("SyncWorker:Run:Started", "cron", cronSpec)
	return srv.Run(mux)
}
