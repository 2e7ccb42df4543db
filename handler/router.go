package handler

import (
	"github.com/AnTengye/dealflow/config"
	"github.com/AnTengye/dealflow/middleware"
	"github.com/AnTengye/dealflow/service"
	"github.com/gin-gonic/gin"
)

// Register mounts the API under /api. Login, onboarding and signature
// verification are public; everything else requires a bearer token.
func Register(router gin.IRouter, cfg *config.Config, deals *service.DealService, documents *service.DocumentService) {
	authHandler := NewAuthHandler(cfg)
	dealHandler := NewDealHandler(deals)
	documentHandler := NewDocumentHandler(documents, cfg.Server.MaxUploadSize)
	signatureHandler := NewSignatureHandler(documents)

	router.GET("/health", Health)

	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/onboarding", dealHandler.Onboard)
		api.POST("/signatures/:token/verify", signatureHandler.Verify)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(&cfg.Auth))
		{
			protected.GET("/auth/me", authHandler.GetCurrentUser)

			protected.POST("/contacts", dealHandler.CreateContact)
			protected.GET("/contacts/:id", dealHandler.GetContact)

			protected.POST("/deals", dealHandler.Create)
			protected.GET("/deals", dealHandler.List)
			protected.GET("/deals/:id", dealHandler.Get)
			protected.DELETE("/deals/:id", dealHandler.Delete)
			protected.POST("/deals/:id/auto-progress", dealHandler.AutoProgress)
			protected.POST("/deals/:id/send-kyc", dealHandler.SendKYC)
			protected.POST("/deals/:id/archive-drive", dealHandler.ArchiveDocuments)
			protected.PUT("/deals/:id/stage", dealHandler.SetStage)
			protected.PUT("/deals/:id/kyc-status", dealHandler.SetKYCStatus)
			protected.GET("/deals/:id/tasks", dealHandler.ListTasks)
			protected.POST("/deals/:id/documents", documentHandler.Upload)
			protected.GET("/deals/:id/documents", documentHandler.List)

			protected.POST("/tasks/:id/complete", dealHandler.CompleteTask)

			protected.GET("/documents/:id", documentHandler.Get)
			protected.GET("/documents/:id/download", documentHandler.Download)
			protected.DELETE("/documents/:id", documentHandler.Delete)
			protected.GET("/documents/:id/steps", documentHandler.Steps)
			protected.GET("/documents/:id/signatures", documentHandler.Signatures)
			protected.POST("/documents/:id/extract", documentHandler.Extract)
			protected.POST("/documents/:id/request-review", documentHandler.RequestReview)
			protected.POST("/documents/:id/review", documentHandler.Review)
			protected.POST("/documents/:id/acknowledge", documentHandler.Acknowledge)
			protected.POST("/documents/:id/sign", documentHandler.Sign)
			protected.POST("/documents/:id/steps/:stepId/retry", documentHandler.RetryStep)
		}
	}
}
