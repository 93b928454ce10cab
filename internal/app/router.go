package app

import (
	"learnhub_backend/docs"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	auth := middleware.AuthMiddleware(cfg, a.services.sessions)

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 页面类接口：未登录跳转登录页
	router.GET("/download", middleware.PageAuthMiddleware(cfg, a.services.sessions), c.download.Download)

	// 3. 进度上报
	router.POST("/update-lesson-progress", auth, c.progress.UpdateLessonProgress)
	router.POST("/update-quiz-progress", auth, c.quiz.UpdateQuizProgress)

	// 4. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(auth)
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerInstructorRoutes(authGroup, c)
	}

	if cfg.Storage.Type == util.StorageLocal {
		// 本地存储仅开放头像等公共资源，课程附件必须走 /download
		router.Static("/uploads/public", cfg.Storage.LocalPath+"/public")
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.POST("/logout", c.auth.Logout)
	group.GET("/profile", c.auth.Profile)

	courses := group.Group("/courses")
	{
		courses.POST("/:id/enroll", middleware.RoleMiddleware(model.Student), c.course.Enroll)
		courses.GET("/:id/progress", c.course.GetProgress)
		courses.GET("/:id/outline", c.course.GetOutline)
	}

	group.GET("/lessons/:id", c.course.GetLesson)

	quizzes := group.Group("/quizzes")
	{
		quizzes.GET("/:id", c.quiz.GetQuiz)
		quizzes.POST("/:id/start", middleware.RoleMiddleware(model.Student), c.quiz.StartAttempt)
		quizzes.POST("/:id/attempts/:attemptId/submit", middleware.RoleMiddleware(model.Student), c.quiz.SubmitAttempt)
	}
}

func (a *App) registerInstructorRoutes(group *gin.RouterGroup, c *controllers) {
	instructor := group.Group("/instructor")
	instructor.Use(middleware.RoleMiddleware(model.Instructor))
	{
		instructor.POST("/quizzes", c.quiz.CreateQuiz)
		instructor.GET("/quizzes/:id/attempts", c.quiz.ListAttempts)
		instructor.DELETE("/quizzes/:id/questions/:questionId", c.quiz.DeleteQuestion)
		instructor.DELETE("/quizzes/:id/attempts", c.quiz.DeleteAllAttempts)
	}
}
