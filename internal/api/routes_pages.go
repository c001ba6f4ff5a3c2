package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/app"
	"github.com/charlesng35/coursehub/internal/handlers"
	"github.com/charlesng35/coursehub/internal/middleware"
	"github.com/charlesng35/coursehub/internal/outbox"
	"github.com/charlesng35/coursehub/internal/permissions"
)

// registerPageRoutes mounts the server rendered pages. The outbox page resolves
// anonymous callers and permissions itself so it is not behind RequireAuth.
func registerPageRoutes(r *gin.Engine, svc *serviceSet, checker *permissions.Checker, cfg *app.Config) error {
	outboxHandler, err := handlers.NewOutboxHandler(svc.messages, svc.features, checker)
	if err != nil {
		return err
	}
	r.GET(outbox.OutboxPath, outboxHandler.Handle)
	r.POST(outbox.OutboxPath, outboxHandler.Handle)

	launchHandler, err := handlers.NewLTILaunchHandler(handlers.LaunchHandlerDeps{
		Tools:    svc.tools,
		Courses:  svc.courses,
		Users:    svc.users,
		Audit:    svc.audit,
		Consumer: cfg.LTI.ConsumerProfile(),
	})
	if err != nil {
		return err
	}
	r.GET("/lti/tools/:id/launch", middleware.RequirePagePermission(checker, permissions.ToolLaunch), launchHandler.Launch)

	return nil
}
