package orders

import "time"

// Order statuses. Transitions are strictly forward along
// CREATED -> AWAITING_PAYMENT -> PAYMENT_CONFIRMED -> FULFILLED,
// with PAYMENT_FAILED and EXPIRED terminal from AWAITING_PAYMENT.
const (
	StatusCreated          = "CREATED"
	StatusAwaitingPayment  = "AWAITING_PAYMENT"
	StatusPaymentConfirmed = "PAYMENT_CONFIRMED"
	StatusFulfilled        = "FULFILLED"
	StatusPaymentFailed    = "PAYMENT_FAILED"
	StatusExpired          = "EXPIRED"
)

// Order represents the item stored in the orders DynamoDB table.
// OrderID is server-generated and is the only identity clients see;
// ChargeID belongs to the payment processor and is set at most once.
type Order struct {
	OrderID       string    `dynamodbav:"order_id"` // PK
	CustomerEmail string    `dynamodbav:"customer_email"`
	CustomerName  string    `dynamodbav:"customer_name"`
	Package       string    `dynamodbav:"package"`
	Rush          bool      `dynamodbav:"rush"`
	Amount        int64     `dynamodbav:"amount"` // minor currency units
	Currency      string    `dynamodbav:"currency"`
	ChargeID      string    `dynamodbav:"charge_id,omitempty"` // GSI PK
	Status        string    `dynamodbav:"status"`
	AssetRef      string    `dynamodbav:"asset_ref,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at"`
}

// Draft carries the fields the orchestrator supplies when creating an Order.
type Draft struct {
	CustomerEmail string
	CustomerName  string
	Package       string
	Rush          bool
	Amount        int64
	Currency      string
}
