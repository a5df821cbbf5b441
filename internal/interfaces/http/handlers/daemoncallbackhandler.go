package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moneta-pay/moneta/internal/application/listener"
	"github.com/moneta-pay/moneta/internal/shared/logger"
)

// SignalSink accepts scan signals from daemon notification hooks.
type SignalSink interface {
	Notify(sig listener.Signal)
}

// DaemonCallbackHandler receives wallet daemon notification callbacks. The
// daemon is configured with --block-notify and --tx-notify hooks that curl
// these endpoints.
type DaemonCallbackHandler struct {
	sink   SignalSink
	logger logger.Interface
}

// NewDaemonCallbackHandler creates a new daemon callback handler
func NewDaemonCallbackHandler(sink SignalSink, logger logger.Interface) *DaemonCallbackHandler {
	return &DaemonCallbackHandler{
		sink:   sink,
		logger: logger,
	}
}

// NewBlock handles GET /callback/block?cryptoCode=XMR&hash=<block hash>
func (h *DaemonCallbackHandler) NewBlock(c *gin.Context) {
	currency := strings.ToUpper(c.Query("cryptoCode"))
	if currency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cryptoCode is required"})
		return
	}
	hash := c.Query("hash")

	h.logger.Debugw("received new block callback",
		"currency", currency,
		"block_hash", hash,
	)

	h.sink.Notify(listener.Signal{
		Kind:      listener.SignalNewBlock,
		Currency:  currency,
		BlockHash: hash,
	})

	c.Status(http.StatusOK)
}

// TransactionUpdated handles GET /callback/tx?cryptoCode=XMR&hash=<txid>
func (h *DaemonCallbackHandler) TransactionUpdated(c *gin.Context) {
	currency := strings.ToUpper(c.Query("cryptoCode"))
	if currency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cryptoCode is required"})
		return
	}
	txID := c.Query("hash")
	if txID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash is required"})
		return
	}

	h.logger.Debugw("received transaction callback",
		"currency", currency,
		"txid", txID,
	)

	h.sink.Notify(listener.Signal{
		Kind:     listener.SignalTransactionUpdated,
		Currency: currency,
		TxID:     txID,
	})

	c.Status(http.StatusOK)
}
