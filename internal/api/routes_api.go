package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/coursehub/internal/handlers"
	"github.com/charlesng35/coursehub/internal/middleware"
	"github.com/charlesng35/coursehub/internal/permissions"
)

func registerAPIRoutes(api *gin.RouterGroup, svc *serviceSet, checker *permissions.Checker) error {
	// Users
	userHandler, err := handlers.NewUserHandler(svc.users, checker)
	if err != nil {
		return err
	}
	api.GET("/me", userHandler.Me)
	users := api.Group("/users", middleware.RequirePermission(checker, permissions.UserManage))
	{
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id/roles", userHandler.SetRoles)
		users.PUT("/:id/active", userHandler.SetActive)
	}

	// Features
	featureHandler, err := handlers.NewFeatureHandler(svc.features)
	if err != nil {
		return err
	}
	api.GET("/features", featureHandler.List)
	api.PUT("/features/:name", middleware.RequirePermission(checker, permissions.SettingsManage), featureHandler.Set)

	// Messages
	messageHandler, err := handlers.NewMessageHandler(svc.messages, svc.features)
	if err != nil {
		return err
	}
	messages := api.Group("/messages")
	{
		messages.POST("", middleware.RequirePermission(checker, permissions.MessageView), messageHandler.Send)
		messages.GET("/outbox", middleware.RequirePermission(checker, permissions.MessageView), messageHandler.ListOutbox)
		messages.DELETE("/outbox/:id", middleware.RequirePermission(checker, permissions.MessageDelete), messageHandler.DeleteOutbox)
	}

	// Courses
	courseHandler, err := handlers.NewCourseHandler(svc.courses)
	if err != nil {
		return err
	}
	courses := api.Group("/courses")
	{
		courses.GET("", middleware.RequirePermission(checker, permissions.CourseView), courseHandler.List)
		courses.GET("/:id", middleware.RequirePermission(checker, permissions.CourseView), courseHandler.Get)
		courses.POST("", middleware.RequirePermission(checker, permissions.CourseManage), courseHandler.Create)
		courses.DELETE("/:id", middleware.RequirePermission(checker, permissions.CourseManage), courseHandler.Delete)
		courses.POST("/:id/evaluations", middleware.RequirePermission(checker, permissions.CourseManage), courseHandler.CreateEvaluation)
	}
	api.DELETE("/evaluations/:id", middleware.RequirePermission(checker, permissions.CourseManage), courseHandler.DeleteEvaluation)

	// LTI tools
	toolHandler, err := handlers.NewLTIToolHandler(svc.tools)
	if err != nil {
		return err
	}
	tools := api.Group("/lti/tools")
	{
		tools.GET("", middleware.RequirePermission(checker, permissions.ToolView), toolHandler.List)
		tools.GET("/tree", middleware.RequirePermission(checker, permissions.ToolView), toolHandler.Tree)
		tools.GET("/:id", middleware.RequirePermission(checker, permissions.ToolView), toolHandler.Get)
		tools.GET("/:id/children", middleware.RequirePermission(checker, permissions.ToolView), toolHandler.Children)
		tools.POST("", middleware.RequirePermission(checker, permissions.ToolManage), toolHandler.Create)
		tools.PATCH("/:id", middleware.RequirePermission(checker, permissions.ToolManage), toolHandler.Update)
		tools.PUT("/:id/parent", middleware.RequirePermission(checker, permissions.ToolManage), toolHandler.SetParent)
		tools.DELETE("/:id", middleware.RequirePermission(checker, permissions.ToolManage), toolHandler.Delete)
	}

	// Audit
	auditHandler, err := handlers.NewAuditHandler(svc.audit)
	if err != nil {
		return err
	}
	api.GET("/audit", middleware.RequirePermission(checker, permissions.AuditView), auditHandler.List)

	return nil
}
