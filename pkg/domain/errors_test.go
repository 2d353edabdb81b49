package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		sentinel  error
		predicate func(error) bool
	}{
		{"not found", WrapNotFound(EntityPureMetalLot, "lot-1"), ErrNotFound, IsNotFound},
		{"invalid state", WrapInvalidState(EntityChemicalReaction, "rx-1", "cannot complete from COMPLETED"), ErrInvalidState, IsInvalidState},
		{"insufficient balance", WrapInsufficientBalance(EntityPureMetalLot, "lot-1", "needs 500g, has 100g"), ErrInsufficientBalance, IsInsufficientBalance},
		{"duplicate identifier", WrapDuplicateIdentifier(EntityInventoryLot, "1201"), ErrDuplicateIdentifier, IsDuplicateIdentifier},
		{"missing price data", WrapMissingPriceData(MetalGold, "for org-1"), ErrMissingPriceData, IsMissingPriceData},
		{"validation", WrapValidation("source lots must not be empty"), ErrValidation, IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Fatalf("expected %v to wrap sentinel", tc.err)
			}
			if !tc.predicate(tc.err) {
				t.Fatalf("predicate rejected %v", tc.err)
			}
			wrapped := fmt.Errorf("outer context: %w", tc.err)
			if !tc.predicate(wrapped) {
				t.Fatalf("predicate rejected wrapped %v", wrapped)
			}
		})
	}
}

func TestPredicatesRejectOtherKinds(t *testing.T) {
	err := WrapNotFound(EntityProduct, "prod-1")
	if IsInvalidState(err) || IsInsufficientBalance(err) || IsDuplicateIdentifier(err) {
		t.Fatalf("predicates should be kind-specific: %v", err)
	}
	if IsNotFound(errors.New("unrelated")) {
		t.Fatalf("unrelated error should not match")
	}
}
