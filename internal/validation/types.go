package validation

// CreateChargeRequest is the payload for POST /charges.
type CreateChargeRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`        // minor currency units
	Currency      string `json:"currency" validate:"required,len=3"`     // ISO 4217, lowercase
	Package       string `json:"package" validate:"required"`            // package selection
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerName  string `json:"customer_name" validate:"required"`
	Rush          bool   `json:"rush"` // 24-hour turnaround
}
