package main

import (
	"github.com/gin-gonic/gin"

	"github.com/build-biblical-leaders/bbl-api/internal/handler"
	"github.com/build-biblical-leaders/bbl-api/internal/middleware"
	"github.com/build-biblical-leaders/bbl-api/internal/models"
	"github.com/build-biblical-leaders/bbl-api/internal/repository"
	"github.com/build-biblical-leaders/bbl-api/internal/service"
	"github.com/build-biblical-leaders/bbl-api/pkg/config"
)

type handlers struct {
	auth        *handler.AuthHandler
	user        *handler.UserHandler
	invite      *handler.InviteHandler
	curriculum  *handler.CurriculumHandler
	progress    *handler.ProgressHandler
	certificate *handler.CertificateHandler
	chat        *handler.ChatHandler
	study       *handler.StudyHandler
	content     *handler.ContentHandler
	export      *handler.ExportHandler
	metrics     *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h *handlers, auth *service.AuthService, users *repository.UserRepository) {
	r.GET("/health", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)

	api := r.Group(cfg.APIPrefix)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCoAdmin)
	inviters := middleware.RequireRoles(models.RoleAdmin, models.RoleCoAdmin, models.RoleOrganization, models.RoleMentor)

	// Public surface.
	api.POST("/auth/register", h.auth.Register)
	api.POST("/auth/verify", h.auth.VerifyEmail)
	api.GET("/auth/verify", h.auth.VerifyEmail)
	api.POST("/auth/login", h.auth.Login)
	api.POST("/auth/social", h.auth.SocialLogin)
	api.POST("/auth/refresh", h.auth.Refresh)
	api.GET("/invites/token/:token", h.invite.Validate)
	api.POST("/invites/accept", h.invite.Accept)
	api.GET("/certificates/verify/:code", h.certificate.Verify)
	api.GET("/certificates/download/:token", h.certificate.Download)
	api.GET("/exports/:token", h.export.Download)

	// Browsing works with or without a session.
	browse := api.Group("")
	browse.Use(middleware.OptionalJWT(auth))
	browse.GET("/curriculum/tree", h.curriculum.Tree)
	browse.GET("/lessons/:id", h.curriculum.GetLesson)
	browse.GET("/content", h.content.List)
	browse.GET("/content/:id", h.content.Get)

	authed := api.Group("")
	authed.Use(middleware.JWT(auth))

	authed.POST("/auth/logout", h.auth.Logout)
	authed.POST("/auth/change-password", h.auth.ChangePassword)
	authed.POST("/auth/switch-role", h.auth.SwitchRole)
	authed.GET("/auth/me", h.auth.Me)

	authed.GET("/users", staff, h.user.List)
	authed.POST("/users",
		middleware.RequireRoles(models.RoleAdmin, models.RoleCoAdmin, models.RoleOrganization, models.RoleMentor),
		middleware.Audit(users, models.AuditActionUserCreate, "users"),
		h.user.CreateMember)
	authed.GET("/users/:id", middleware.RBAC("ADMIN", "CO_ADMIN", "SELF"), h.user.Get)
	authed.PUT("/users/:id/role", staff, h.user.UpdateRole)
	authed.DELETE("/users/:id", staff, h.user.Delete)
	authed.GET("/organizations/:id/members",
		middleware.RBAC("ADMIN", "CO_ADMIN", "ORGANIZATION", "SELF"), h.user.OrganizationMembers)
	authed.GET("/mentors/:id/students",
		middleware.RBAC("ADMIN", "CO_ADMIN", "MENTOR", "SELF"), h.user.MentorStudents)
	authed.POST("/users/me/group", h.user.CreateGroup)
	authed.POST("/users/me/children", middleware.RequireRoles(models.RoleParent), h.user.LinkParent)
	authed.PUT("/users/me/curated-lessons",
		middleware.RequireRoles(models.RoleMentor, models.RoleOrganization), h.user.SetCuratedLessons)
	authed.PUT("/users/me/module-order", h.user.SetModuleOrder)
	authed.GET("/users/me/module-order", h.user.GetModuleOrder)

	authed.POST("/invites", inviters, h.invite.Create)
	authed.GET("/invites", inviters, h.invite.List)

	authed.GET("/courses/:id/modules", h.curriculum.EffectiveModules)
	authed.GET("/lessons/:id/adjacent", h.curriculum.AdjacentLessons)
	authed.POST("/curriculum/courses", staff, h.curriculum.PublishCourse)
	authed.POST("/curriculum/modules", staff, h.curriculum.PublishModule)
	authed.POST("/curriculum/lessons", staff, h.curriculum.PublishLesson)
	authed.DELETE("/curriculum/lessons/:id", staff, h.curriculum.DeleteLesson)
	authed.POST("/curriculum/drafts/commit", staff, h.curriculum.CommitDraft)

	authed.POST("/progress/attempts", h.progress.SubmitAttempt)
	authed.GET("/progress/lessons/:id", h.progress.LessonProgress)
	authed.GET("/progress/summary", h.progress.Summary)
	authed.GET("/progress/students/:id",
		middleware.RBAC("ADMIN", "CO_ADMIN", "ORGANIZATION", "MENTOR", "PARENT", "SELF"), h.progress.StudentSummary)
	authed.GET("/progress/modules", h.progress.EligibleModules)
	authed.GET("/progress/modules/:id/eligibility", h.progress.ModuleEligibility)

	authed.POST("/certificates", h.certificate.Issue)
	authed.GET("/certificates", h.certificate.List)
	authed.GET("/certificates/modules/:moduleId", h.certificate.Get)

	authed.POST("/chat/channels", h.chat.CreateChannel)
	authed.GET("/chat/channels", h.chat.ListChannels)
	authed.POST("/chat/channels/:id/messages", h.chat.SendMessage)
	authed.GET("/chat/channels/:id/messages", h.chat.ChannelMessages)
	authed.GET("/chat/recent", h.chat.RecentMessages)

	authed.PUT("/study/lessons/:lessonId/:kind", h.study.Save)
	authed.GET("/study/lessons/:lessonId/:kind", h.study.Get)
	authed.GET("/study/lessons/:lessonId", h.study.List)

	authed.POST("/content", staff, h.content.Create)
	authed.PUT("/content/:id", staff, h.content.Update)
	authed.DELETE("/content/:id", staff, h.content.Delete)

	authed.POST("/exports", inviters, h.export.Generate)
	authed.DELETE("/exports/:token", inviters, h.export.Delete)

	authed.GET("/system/metrics", staff, h.metrics.System)
}
