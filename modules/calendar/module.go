package calendar

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"familycal/core/cache"
	"familycal/core/config"
	"familycal/core/crypto"
	"familycal/core/database"
	"familycal/core/middleware"
	auditService "familycal/modules/audit/service"
	"familycal/modules/calendar/controller"
	"familycal/modules/calendar/repository"
	"familycal/modules/calendar/router"
	"familycal/modules/calendar/service"
	"familycal/modules/calendar/token"
	eventRepository "familycal/modules/event/repository"
	familyRepository "familycal/modules/family/repository"
)

// Init wires the calendar module. The returned service and repository also
// drive the background sync worker.
func Init(e *echo.Echo, db database.IDatabase, c cache.Cache, cfg *config.Config, audit auditService.Recorder) (service.CalendarService, repository.CalendarRepository, error) {
	vault, err := crypto.NewVault(cfg.Calendar.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("calendar module: %w", err)
	}
	stateCodec, err := token.NewCodec(cfg.Calendar.StateTokenSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("calendar module: %w", err)
	}

	repo := repository.NewCalendarRepository(db)
	events := eventRepository.NewEventRepository(db)
	families := familyRepository.NewFamilyRepository(db)
	rateLimiter := service.NewSyncRateLimiter(c)

	calendarService := service.NewCalendarService(repo, events, families, audit, vault, stateCodec, rateLimiter, cfg)
	calendarController := controller.NewCalendarController(calendarService)

	mw := middleware.NewMiddleware()
	router.NewCalendarRouter(calendarController).Setup(e, mw)

	return calendarService, repo, nil
}
