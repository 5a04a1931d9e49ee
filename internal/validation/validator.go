package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// currencies the processor settles in
var supportedCurrencies = map[string]bool{
	"usd": true,
	"eur": true,
	"gbp": true,
	"cad": true,
	"aud": true,
}

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for CreateChargeRequest to ensure
	// the currency is one the processor actually supports.
	v.RegisterStructValidation(createChargeStructValidation, CreateChargeRequest{})

	return v
}

func createChargeStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateChargeRequest)

	if req.Currency != "" && !supportedCurrencies[req.Currency] {
		sl.ReportError(req.Currency, "currency", "Currency", "currency_supported", req.Currency)
	}
}
