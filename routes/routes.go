package routes

import (
	"github.com/otabeknarz/11tutors-backend/config"
	"github.com/otabeknarz/11tutors-backend/controllers"
	"github.com/otabeknarz/11tutors-backend/middleware"
	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Dependencies - все, что нужно маршрутам; собирается в main
type Dependencies struct {
	Config      *config.Config
	DB          *gorm.DB
	RDB         *redis.Client
	Users       *services.UserService
	Payments    *services.PaymentService
	Checkout    *services.CheckoutService
	Enrollments *services.EnrollmentService
	Reconciler  *services.Reconciler
	Stats       *services.StatsService
	Importer    *services.UniversityImporter
	// Gateways - провайдеры, принимающие webhook; ключ - имя провайдера
	Gateways map[string]services.Gateway
}

// SetupRouter создаёт gin.Engine, регистрирует все маршруты и возвращает роутер
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), middleware.RecoveryMiddleware())

	// CORS middleware ДО роутов
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "https://11tutors.com", "https://www.11tutors.com"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	auth := middleware.JWTAuthMiddleware(deps.Config.JWTSecret, deps.RDB)

	SetupAuthRoutes(r, deps, auth)
	SetupPaymentRoutes(r, deps, auth)
	SetupCourseRoutes(r, deps, auth)

	return r
}

// SetupAuthRoutes - регистрация, токены, Google и анкета
func SetupAuthRoutes(r *gin.Engine, deps *Dependencies, auth gin.HandlerFunc) {
	userController := controllers.NewUserController(deps.Users, deps.RDB, controllers.NewGoogleOAuth(deps.Config))

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/users", userController.Register)
		authGroup.GET("/verify-email", userController.VerifyEmail)
		authGroup.POST("/verify-email/resend", userController.ResendVerification)
		authGroup.POST("/token", userController.Login)
		authGroup.POST("/token/refresh", userController.Refresh)
		authGroup.GET("/google", userController.GoogleLogin)
		authGroup.GET("/google/callback", userController.GoogleCallback)

		authGroup.GET("/me", auth, userController.Me)
		authGroup.POST("/logout", auth, userController.Logout)
		authGroup.GET("/onboarding", auth, userController.ListOnboarding)
		authGroup.POST("/onboarding", auth, userController.SaveOnboarding)
	}
}

// SetupCourseRoutes - доступы к курсам, статистика преподавателя, справочник университетов
func SetupCourseRoutes(r *gin.Engine, deps *Dependencies, auth gin.HandlerFunc) {
	enrollmentController := controllers.NewEnrollmentController(deps.Enrollments)
	statsController := controllers.NewStatsController(deps.Stats)
	universityController := controllers.NewUniversityController(deps.DB, deps.Importer)

	r.GET("/api/courses/enrollments/me", auth, enrollmentController.Mine)
	r.GET("/api/stats/tutor", auth, middleware.RequireRole(models.RoleTutor, models.RoleAdmin), statsController.Tutor)

	core := r.Group("/api/core")
	{
		core.GET("/universities", universityController.List)
		core.POST("/universities/import", auth, middleware.RequireRole(models.RoleAdmin), universityController.Import)
	}
}
