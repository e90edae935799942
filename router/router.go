package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/savagetongue/mess-connect0209/controllers"
	"github.com/savagetongue/mess-connect0209/middlewares"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/services"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Stores        *services.Stores
	Users         *services.UserService
	Payments      *services.PaymentService
	Settings      *services.SettingsService
	Notifications *services.NotificationService
	Admin         *services.AdminService
}

func SetupRouter(svc Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())

	userCtrl := controllers.NewUserController(svc.Users)
	paymentCtrl := controllers.NewPaymentController(svc.Payments)
	menuCtrl := controllers.NewMenuController(svc.Settings)
	notificationCtrl := controllers.NewNotificationController(svc.Notifications)
	feedbackCtrl := controllers.NewFeedbackController(svc.Stores)
	noteCtrl := controllers.NewNoteController(svc.Stores)
	adminCtrl := controllers.NewAdminController(svc.Admin, svc.Payments)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	public := api.Group("/")
	public.Use(middlewares.NewStrictRateLimiter())
	{
		public.POST("/register", userCtrl.Register)
		public.POST("/login", userCtrl.Login)
	}

	api.GET("/menu", menuCtrl.GetMenu)
	api.GET("/settings", menuCtrl.GetSettings)

	// Checkout is open to guests as well as students.
	payments := api.Group("/payments")
	payments.Use(
		middlewares.PaymentSecurityHeaders(),
		middlewares.PaymentRateLimiter(),
		middlewares.LogPaymentRequest(),
	)
	{
		payments.POST("/create-order", middlewares.ValidatePaymentRequest(), paymentCtrl.CreateOrder)
		payments.POST("/verify-payment", middlewares.ValidatePaymentRequest(), paymentCtrl.VerifyPayment)
	}

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	auth := api.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	auth.GET("/profile", userCtrl.GetProfile)
	auth.POST("/logout", userCtrl.Logout)

	student := auth.Group("/")
	student.Use(middlewares.RequireRoles(models.RoleStudent))
	{
		student.POST("/complaints", feedbackCtrl.CreateComplaint)
		student.POST("/suggestions", feedbackCtrl.CreateSuggestion)
		student.GET("/student/dues", paymentCtrl.StudentDues)
		student.GET("/student/complaints", feedbackCtrl.MyComplaints)
		student.GET("/student/suggestions", feedbackCtrl.MySuggestions)
		student.GET("/student/notifications", notificationCtrl.MyNotifications)
	}

	manager := auth.Group("/")
	manager.Use(middlewares.RequireRoles(models.RoleManager))
	{
		manager.GET("/manager/stats", adminCtrl.GetDashboardStats)
		manager.GET("/manager/payment-metrics", adminCtrl.GetPaymentMetrics)

		manager.GET("/students", userCtrl.ListStudents)
		manager.POST("/students/:id/approve", userCtrl.ApproveStudent)
		manager.POST("/students/:id/reject", userCtrl.RejectStudent)
		manager.POST("/students/:id/notify", notificationCtrl.NotifyStudent)
		manager.DELETE("/students/:id", userCtrl.DeleteStudent)
		manager.POST("/broadcast", notificationCtrl.Broadcast)

		manager.PUT("/menu", menuCtrl.UpdateMenu)

		manager.GET("/complaints/all", feedbackCtrl.AllComplaints)
		manager.POST("/complaints/:id/reply", feedbackCtrl.ReplyComplaint)
		manager.GET("/suggestions/all", feedbackCtrl.AllSuggestions)
		manager.POST("/suggestions/:id/reply", feedbackCtrl.ReplySuggestion)

		manager.GET("/notes", noteCtrl.GetNotes)
		manager.POST("/notes", noteCtrl.CreateNote)
		manager.PUT("/notes/:id", noteCtrl.UpdateNote)
		manager.DELETE("/notes/:id", noteCtrl.DeleteNote)

		manager.GET("/settings/fee", menuCtrl.GetFee)
		manager.POST("/settings/fee", menuCtrl.UpdateFee)
		manager.POST("/settings/rules", menuCtrl.UpdateRules)
		manager.POST("/settings/clear-all-data", adminCtrl.ClearAllData)

		manager.GET("/financials", paymentCtrl.Financials)
		manager.POST("/payments/mark-as-paid", middlewares.ValidatePaymentRequest(), paymentCtrl.MarkAsPaid)
		manager.GET("/payments/orders/:order_id", paymentCtrl.GetOrderStatus)
		manager.DELETE("/payments/:payment_id", paymentCtrl.DeletePayment)
	}

	return r
}
