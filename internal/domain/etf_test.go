package domain

import (
	"errors"
	"testing"
)

func TestWeightsBalanced(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		want    bool
	}{
		{"exact 100", []float64{40, 40, 20}, true},
		{"short by one", []float64{40, 40, 19}, false},
		{"within tolerance", []float64{33.33, 33.33, 33.34}, true},
		{"float rounding", []float64{33.33, 33.33, 33.33}, true},
		{"over tolerance", []float64{50, 50.02}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := make([]Constituent, len(tt.weights))
			for i, w := range tt.weights {
				cs[i] = Constituent{Mint: "m", Weight: w}
			}
			if got := WeightsBalanced(cs); got != tt.want {
				t.Errorf("WeightsBalanced(%v) = %v, want %v (sum %f)", tt.weights, got, tt.want, WeightSum(cs))
			}
		})
	}
}

func TestConstituentRules(t *testing.T) {
	good := []Constituent{
		{Mint: WSOLMint, Weight: 40},
		{Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Weight: 60},
	}
	if err := BalancedWeights.Validate(good); err != nil {
		t.Errorf("BalancedWeights rejected valid basket: %v", err)
	}
	for _, c := range good {
		if err := Validate(c); err != nil {
			t.Errorf("Validate(%s) = %v", c.Mint, err)
		}
	}

	if err := BalancedWeights.Validate([]Constituent{{Mint: WSOLMint, Weight: 101}}); err == nil {
		t.Error("expected weight above 100 to be rejected")
	}

	bad := Constituent{Mint: "not-an-address", Weight: 100}
	if err := Validate(bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
