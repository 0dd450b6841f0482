// Package router mounts the HTTP surface of the booking API.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/testmentor-api/internal/handler"
	"github.com/noah-isme/testmentor-api/internal/middleware"
	"github.com/noah-isme/testmentor-api/internal/models"
	"github.com/noah-isme/testmentor-api/internal/service"
)

// Handlers groups every route handler.
type Handlers struct {
	Teachers         *handler.TeacherHandler
	Availability     *handler.AvailabilityHandler
	AvailabilityRule *handler.AvailabilityRuleHandler
	Bookings         *handler.BookingHandler
	Receipts         *handler.ReceiptHandler
	Sessions         *handler.SessionHandler
	Conversations    *handler.ConversationHandler
	Metrics          *handler.MetricsHandler
}

// Options toggles optional route groups.
type Options struct {
	APIPrefix string
	Docs      bool
}

// Register mounts ops routes at the root and the API under opts.APIPrefix.
func Register(r *gin.Engine, auth *service.AuthService, metrics *service.MetricsService, h Handlers, opts Options) {
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.Docs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	// public
	api.GET("/tests", h.Teachers.Catalog)
	api.GET("/teachers", h.Teachers.List)
	api.GET("/teachers/:id", h.Teachers.Get)
	api.GET("/availability", h.Availability.Batch)
	api.GET("/teachers/:id/availability", h.Availability.ForTeacher)
	api.GET("/teachers/:id/open-slots", h.Availability.OpenSlots)
	api.GET("/teachers/:id/availability-rules", h.AvailabilityRule.ListRules)
	api.GET("/teachers/:id/unavailable-dates", h.AvailabilityRule.ListExceptions)
	api.GET("/receipts/download", h.Receipts.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(auth))

	student := middleware.RequireRoles(models.RoleStudent)
	teacher := middleware.RequireRoles(models.RoleTeacher)
	participant := middleware.RequireRoles(models.RoleStudent, models.RoleTeacher)

	rules := secured.Group("", teacher)
	rules.POST("/availability-rules", h.AvailabilityRule.CreateRule)
	rules.PUT("/availability-rules/:id", h.AvailabilityRule.UpdateRule)
	rules.DELETE("/availability-rules/:id", h.AvailabilityRule.DeleteRule)
	rules.POST("/unavailable-dates", h.AvailabilityRule.CreateException)
	rules.DELETE("/unavailable-dates/:id", h.AvailabilityRule.DeleteException)

	secured.POST("/receipts", student, h.Receipts.Upload)

	bookings := secured.Group("/bookings", participant)
	bookings.POST("", student, h.Bookings.Create)
	bookings.GET("", h.Bookings.List)
	bookings.GET("/:id", h.Bookings.Get)
	bookings.POST("/:id/accept", teacher, h.Bookings.Accept)
	bookings.POST("/:id/reject", teacher, h.Bookings.Reject)
	bookings.POST("/:id/cancel", h.Bookings.Cancel)
	bookings.GET("/:id/receipt-url", h.Bookings.ReceiptURL)

	sessions := secured.Group("/sessions", participant)
	sessions.GET("", h.Sessions.List)
	sessions.GET("/export", teacher, h.Sessions.Export)
	sessions.PATCH("/:id/meeting-link", teacher, h.Sessions.UpdateMeetingLink)
	sessions.POST("/:id/complete", teacher, h.Sessions.Complete)

	conversations := secured.Group("/conversations", participant)
	conversations.GET("", h.Conversations.List)
	conversations.GET("/:id/messages", h.Conversations.ListMessages)
	conversations.POST("/:id/messages", h.Conversations.PostMessage)

	secured.GET("/metrics/summary", h.Metrics.Summary)
}
