package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/primepix/orderflow/internal/checkout"
	"github.com/primepix/orderflow/internal/gateway"
	"github.com/primepix/orderflow/internal/orders"
	"github.com/primepix/orderflow/internal/validation"
	"github.com/primepix/orderflow/internal/webhook"
)

// maxWebhookBody bounds how much of a webhook delivery we read before
// verification.
const maxWebhookBody = 1 << 20

// CheckoutService is the slice of the orchestrator the routes use.
type CheckoutService interface {
	StartOrder(ctx context.Context, draft orders.Draft) (*orders.Order, *gateway.ChargeRecord, error)
	ConfirmOrder(ctx context.Context, orderID, filename string, asset io.Reader) (*orders.Order, error)
	HandlePaymentEvent(ctx context.Context, ev *webhook.Event) error
}

// OrderGetter serves the read-only order status endpoint.
type OrderGetter interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// HandlerConfig groups dependencies for the order routes.
type HandlerConfig struct {
	Checkout      CheckoutService
	Orders        OrderGetter
	Verifier      *webhook.Verifier
	AssetMaxBytes int64
}

// RegisterOrderRoutes registers the order, confirmation and webhook routes.
func RegisterOrderRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.POST("/charges", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateChargeRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		order, charge, err := cfg.Checkout.StartOrder(ctx, orders.Draft{
			CustomerEmail: req.CustomerEmail,
			CustomerName:  req.CustomerName,
			Package:       req.Package,
			Rush:          req.Rush,
			Amount:        req.Amount,
			Currency:      req.Currency,
		})
		if err != nil {
			var ge *gateway.Error
			if errors.As(err, &ge) {
				c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_error"})
				return
			}
			log.Printf("[handlers] start order failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"order_id":      order.OrderID,
			"charge_id":     charge.ID,
			"client_secret": charge.ClientSecret,
		})
	})

	r.POST("/orders/:orderID/confirm", func(c *gin.Context) {
		ctx := c.Request.Context()
		orderID := c.Param("orderID")

		// size ceiling on the whole multipart body
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.AssetMaxBytes)

		file, header, err := c.Request.FormFile("photo")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_upload"})
			return
		}
		defer file.Close()

		order, err := cfg.Checkout.ConfirmOrder(ctx, orderID, header.Filename, file)
		if err != nil {
			switch {
			case errors.Is(err, orders.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			case errors.Is(err, orders.ErrConflict):
				c.JSON(http.StatusConflict, gin.H{"error": "order_not_awaiting_payment"})
			case errors.Is(err, checkout.ErrPaymentNotComplete):
				c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_not_complete"})
			default:
				var ge *gateway.Error
				if errors.As(err, &ge) {
					c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_error"})
					return
				}
				log.Printf("[handlers] confirm order=%s failed: %v", orderID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order_id":  order.OrderID,
			"status":    order.Status,
			"asset_ref": order.AssetRef,
		})
	})

	r.POST("/webhooks/payment", func(c *gin.Context) {
		ctx := c.Request.Context()

		// verification needs the exact wire bytes; nothing may parse first
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
			return
		}

		ev, err := cfg.Verifier.Verify(body, c.GetHeader("Payment-Signature"))
		if err != nil {
			if errors.Is(err, webhook.ErrInvalidSignature) {
				// fixed body: no internal detail reaches this unauthenticated endpoint
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
				return
			}
			// authenticated but unusable payload: a retry would not help
			log.Printf("[handlers] webhook payload unusable: %v", err)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		if err := cfg.Checkout.HandlePaymentEvent(ctx, ev); err != nil {
			// the processor treats non-200 as "retry"; internal faults are
			// logged, never surfaced
			log.Printf("[handlers] payment event %s failed: %v", ev.ID, err)
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	})

	r.GET("/orders/:orderID", func(c *gin.Context) {
		order, err := cfg.Orders.Get(c.Request.Context(), c.Param("orderID"))
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
				return
			}
			log.Printf("[handlers] get order failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order_id":   order.OrderID,
			"status":     order.Status,
			"package":    order.Package,
			"rush":       order.Rush,
			"amount":     order.Amount,
			"currency":   order.Currency,
			"charge_id":  order.ChargeID,
			"asset_ref":  order.AssetRef,
			"created_at": order.CreatedAt,
		})
	})
}
