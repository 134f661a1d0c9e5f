package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wager-ledger-backend/internal/middleware"
)

type Router struct {
	Users     *UserHandler
	Games     *GameHandler
	Deposits  *DepositHandler
	WebSocket *WebSocketHandler
}

// Engine builds the gin engine with every route registered.
func (r *Router) Engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "online"})
	})

	// Gateway callbacks. The PassimPay-prefixed path serves callback URLs
	// configured before the generic one existed.
	router.POST("/webhook/deposit", r.Deposits.Webhook)
	router.POST("/passimpay/webhook/deposit", r.Deposits.Webhook)

	api := router.Group("/api")
	api.Use(middleware.PlayerIdentity())
	{
		api.GET("/session", r.Users.GetSession)
		api.POST("/profile/register", r.Users.RegisterProfile)
		api.GET("/transactions", r.Users.GetTransactions)

		bet := api.Group("/bet")
		{
			bet.POST("/start", r.Games.StartBet)
			bet.POST("/finish", r.Games.FinishBet)
		}

		deposit := api.Group("/deposit")
		{
			deposit.POST("/create", r.Deposits.CreateDeposit)
			deposit.GET("/:orderId", r.Deposits.GetDeposit)
		}

		if r.WebSocket != nil {
			api.GET("/ws", r.WebSocket.HandleWebSocket)
		}
	}

	return router
}
