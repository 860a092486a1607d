package handler

import (
	"smartdoc-go/internal/config"
	"smartdoc-go/internal/middleware"
	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// RouterDeps 路由所需的全部服务。
type RouterDeps struct {
	UserService     service.UserService
	DocumentService service.DocumentService
	SearchService   service.SearchService
	ChatService     service.ChatService
	JWTManager      *token.JWTManager
	RAG             config.RAGConfig
	AskLimiter      *middleware.RateLimiter
	UploadLimiter   *middleware.RateLimiter
	CORSOrigins     []string
	ServiceName     string
	Tracing         bool
}

// NewRouter 注册全部路由。
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	if d.Tracing {
		r.Use(middleware.Tracing(d.ServiceName), middleware.EnrichTrace())
	}
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(d.CORSOrigins))

	r.GET("/health", Health)

	accounts := NewAccountHandler(d.UserService)
	documentHandler := NewDocumentHandler(d.DocumentService, d.ChatService)
	askHandler := NewAskHandler(d.ChatService, d.SearchService, d.RAG)
	auth := middleware.AuthMiddleware(d.JWTManager, d.UserService)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/refreshToken", accounts.Refresh)

		users := apiV1.Group("/users")
		{
			users.POST("/register", accounts.Register)
			users.POST("/login", accounts.Login)

			authed := users.Group("")
			authed.Use(auth)
			{
				authed.GET("/me", accounts.Me)
				authed.POST("/logout", accounts.Logout)
			}
		}

		documents := apiV1.Group("/documents")
		documents.Use(auth)
		{
			documents.POST("", d.UploadLimiter.Middleware(), documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/stats", documentHandler.Stats)
			documents.GET("/:id/download", documentHandler.Download)
			documents.POST("/:id/analyze", documentHandler.Analyze)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/ask", d.AskLimiter.Middleware(), documentHandler.Ask)
		}

		authedAPI := apiV1.Group("")
		authedAPI.Use(auth)
		{
			authedAPI.POST("/ask", d.AskLimiter.Middleware(), askHandler.AskGlobal)
			authedAPI.GET("/search", askHandler.Search)
			authedAPI.GET("/conversations", askHandler.Conversations)
		}
	}

	r.GET("/chat/:token", NewChatHandler(d.ChatService, d.UserService, d.JWTManager).Handle)
	return r
}
