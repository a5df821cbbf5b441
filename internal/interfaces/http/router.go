package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moneta-pay/moneta/internal/application/listener"
	"github.com/moneta-pay/moneta/internal/interfaces/http/handlers"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// AvailabilityReader exposes daemon availability for the health endpoint.
type AvailabilityReader interface {
	Currencies() []string
	IsAvailable(currency string) bool
}

// Router represents the HTTP router configuration
type Router struct {
	engine          *gin.Engine
	callbackHandler *handlers.DaemonCallbackHandler
	wallets         AvailabilityReader
	scanner         *listener.Scanner
}

// NewRouter creates a new HTTP router with all dependencies
func NewRouter(scanner *listener.Scanner, wallets AvailabilityReader, log logger.Interface) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Router{
		engine:          engine,
		callbackHandler: handlers.NewDaemonCallbackHandler(scanner, log),
		wallets:         wallets,
		scanner:         scanner,
	}
}

// SetupRoutes registers all HTTP routes
func (r *Router) SetupRoutes() {
	callback := r.engine.Group("/callback")
	{
		callback.GET("/block", r.callbackHandler.NewBlock)
		callback.GET("/tx", r.callbackHandler.TransactionUpdated)
	}

	r.engine.GET("/health", r.health)
}

// GetEngine returns the underlying gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) health(c *gin.Context) {
	daemons := make(map[string]bool)
	for _, currency := range r.wallets.Currencies() {
		daemons[currency] = r.wallets.IsAvailable(currency)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"scanner": string(r.scanner.State()),
		"daemons": daemons,
	})
}
