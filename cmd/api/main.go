package main

import (
	"context"
	"log"
	"net/http"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/primepix/orderflow/internal/assets"
	"github.com/primepix/orderflow/internal/aws"
	"github.com/primepix/orderflow/internal/checkout"
	"github.com/primepix/orderflow/internal/config"
	"github.com/primepix/orderflow/internal/events"
	"github.com/primepix/orderflow/internal/gateway"
	"github.com/primepix/orderflow/internal/handlers"
	"github.com/primepix/orderflow/internal/notify"
	"github.com/primepix/orderflow/internal/orders"
	"github.com/primepix/orderflow/internal/webhook"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrderRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	eventStore := events.NewStore(clients.DynamoDB, cfg.EventsTable, cfg.EventTTL)
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayTimeout)
	verifier := webhook.NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
	queue := notify.NewQueue(clients.SQS, cfg.NotifyQueueURL)
	metrics := aws.NewMetrics(clients.CloudWatch, "PrimePix/Orders")

	// without a bucket configured, uploads are held in process memory
	// (local development only)
	var assetStore assets.Store = assets.NewMemoryStore()
	if cfg.AssetBucket != "" {
		assetStore = assets.NewS3Store(clients.S3, cfg.AssetBucket)
	}

	svc := checkout.NewService(orderStore, gw, assetStore, queue, eventStore, metrics)

	r := setupRouter(handlers.HandlerConfig{
		Checkout:      svc,
		Orders:        orderStore,
		Verifier:      verifier,
		AssetMaxBytes: cfg.AssetMaxBytes,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":" + cfg.Port
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
