package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/middleware"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth          *AuthHandler
	AcademicYears *AcademicYearHandler
	Coverage      *CoverageHandler
	Attendance    *AttendanceHandler
	Fees          *FeeHandler
	Students      *StudentHandler
	Staff         *StaffHandler
	Notifications *NotificationHandler
}

// RegisterRoutes mounts the API on group. Every route except login and refresh requires a
// valid access token, and role checks run before the handler.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator, audit middleware.AuditWriter, logger *zap.Logger) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	adminManager := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleManager, models.RoleTeacher)
	audited := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(audit, logger, action, resource)
	}

	authGroup := group.Group("/auth")
	authGroup.POST("/login", h.Auth.Login)
	authGroup.POST("/refresh", h.Auth.Refresh)
	authGroup.POST("/logout", middleware.JWT(tokens), h.Auth.Logout)

	secured := group.Group("", middleware.JWT(tokens))

	years := secured.Group("/academic-years")
	years.POST("/create", admin, audited(models.AuditActionYearCreate, "academic_years"), h.AcademicYears.Create)
	years.POST("/start-new", admin, audited(models.AuditActionYearTransition, "academic_years"), h.AcademicYears.StartNew)
	years.POST("/update", admin, audited(models.AuditActionYearUpdate, "academic_years"), h.AcademicYears.Update)
	years.GET("/history", adminManager, h.AcademicYears.History)
	years.GET("/active", anyRole, h.AcademicYears.Active)

	timetable := secured.Group("/timetable")
	timetable.POST("/coverage/resolve", adminManager, audited(models.AuditActionCoverageResolve, "coverage_tasks"), h.Coverage.Resolve)
	timetable.POST("/coverage/absences", adminManager, h.Coverage.ReportAbsence)
	timetable.GET("/coverage", adminManager, h.Coverage.List)
	timetable.GET("/teachers/:id/schedule", middleware.RBAC(string(models.RoleAdmin), string(models.RoleManager), middleware.RoleSelf), h.Coverage.TeacherSchedule)

	attendance := secured.Group("/attendance")
	attendance.POST("/mark", anyRole, h.Attendance.Mark)
	attendance.POST("/staff/mark", adminManager, h.Attendance.MarkStaff)
	attendance.GET("/sheet", anyRole, h.Attendance.Sheet)

	secured.POST("/payments/create", admin, audited(models.AuditActionPaymentCreate, "payments"), h.Fees.CreatePayment)
	ledgers := secured.Group("/fees/ledgers", adminManager)
	ledgers.GET("/:studentId", h.Fees.Ledger)
	ledgers.GET("/:studentId/payments", h.Fees.Payments)
	ledgers.GET("/:studentId/pending-terms", h.Fees.PendingTerms)
	ledgers.GET("/:studentId/statement", h.Fees.Statement)

	students := secured.Group("/students")
	students.GET("", adminManager, h.Students.List)
	students.GET("/:id", adminManager, h.Students.Get)
	students.GET("/:id/can-delete", adminManager, h.Students.CanDelete)
	students.DELETE("/:id", admin, audited(models.AuditActionStudentDelete, "students"), h.Students.Delete)
	students.POST("/:id/deactivate", admin, h.Students.Deactivate)
	students.POST("/:id/reactivate", admin, h.Students.Reactivate)
	students.POST("/:id/retention", admin, h.Students.SetRetention)

	staff := secured.Group("/staff", admin)
	staff.GET("/:id", h.Staff.Get)
	staff.GET("/:id/can-delete", h.Staff.CanDelete)
	staff.DELETE("/:id", audited(models.AuditActionStaffDelete, "staff"), h.Staff.Delete)
	staff.POST("/:id/deactivate", h.Staff.Deactivate)

	notifications := secured.Group("/notifications", anyRole)
	notifications.GET("", h.Notifications.List)
	notifications.POST("/:id/read", h.Notifications.MarkRead)
}
