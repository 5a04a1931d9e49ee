package main

import (
	"context"
	"log"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/primepix/orderflow/internal/aws"
	"github.com/primepix/orderflow/internal/config"
	"github.com/primepix/orderflow/internal/notify"
	"github.com/primepix/orderflow/internal/orders"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	store := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	mailer := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.FromAddress)
	queue := notify.NewQueue(clients.SQS, cfg.NotifyQueueURL)

	p := NewProcessor(store, mailer, queue, cfg.PendingTTL)

	// If RUN_LOCAL=true, simulate a single SQS delivery for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"order_id":"local-order-1"}`
		}
		event := lambdaevents.SQSEvent{
			Records: []lambdaevents.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.HandleSQS(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	// One binary, two triggers: WORKER_MODE=sweep binds the scheduled
	// handler, anything else binds the queue handler.
	if os.Getenv("WORKER_MODE") == "sweep" {
		lambda.Start(func(ctx context.Context, _ lambdaevents.CloudWatchEvent) error {
			return p.HandleSweep(ctx)
		})
		return
	}

	lambda.Start(p.HandleSQS)
}
