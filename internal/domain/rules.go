package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jellydator/validation"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// Address is a validation rule for base58 32-byte Solana public keys.
// Empty values pass; combine with validation.Required.
var Address = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		return errors.New("must be a base58 encoded 32-byte address")
	}
	return nil
})

// RequiredID rejects uuid.Nil. validation.Required cannot, since a UUID is a
// fixed-size array that renders as a non-empty string.
var RequiredID = validation.By(func(value any) error {
	id, _ := value.(uuid.UUID)
	if id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
})

// PositiveAmount is a validation rule for SOL amounts greater than zero with
// at most SOLDecimals significant decimal places.
var PositiveAmount = validation.By(func(value any) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal amount")
	}
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	if !d.Equal(d.Truncate(SOLDecimals)) {
		return fmt.Errorf("must have at most %d decimal places", SOLDecimals)
	}
	return nil
})

// BalancedWeights is a validation rule for constituent lists.
var BalancedWeights = validation.By(func(value any) error {
	cs, _ := value.([]Constituent)
	if len(cs) > MaxConstituents {
		return fmt.Errorf("at most %d constituents", MaxConstituents)
	}
	for _, c := range cs {
		if c.Weight <= 0 || c.Weight > 100 {
			return fmt.Errorf("weight of %s must be in (0, 100]", c.Mint)
		}
	}
	if !WeightsBalanced(cs) {
		return fmt.Errorf("weights must sum to 100, got %.4f", WeightSum(cs))
	}
	return nil
})

// Validate runs v.Validate and wraps a failure in ErrValidation.
func Validate(v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Validate checks the constituent fields.
func (c Constituent) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mint, validation.Required, Address),
	)
}
