package main

import (
	"fmt"
	"strconv"
	"strings"
)

// CheckoutStep is a position in the storefront's four step checkout.
type CheckoutStep int

const (
	// StepNone means every step is already marked done.
	StepNone CheckoutStep = iota
	StepTerms
	StepDelivery
	StepPayment
	StepConfirmation
)

var checkoutSteps = []CheckoutStep{StepTerms, StepDelivery, StepPayment, StepConfirmation}

func (s CheckoutStep) String() string {
	switch s {
	case StepTerms:
		return "terms"
	case StepDelivery:
		return "delivery"
	case StepPayment:
		return "payment"
	case StepConfirmation:
		return "confirmation"
	case StepNone:
		return "none"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// CurrentStep reads which steps the storefront renders as completed and
// returns the first one that is not. It never caches.
func CurrentStep(page Page, sel SelectorConfig) (CheckoutStep, error) {
	markers, err := page.Texts(sel.CompletedSteps)
	if err != nil {
		return StepNone, fmt.Errorf("failed to read checkout steps: %w", err)
	}
	return firstOpenStep(markers), nil
}

func firstOpenStep(markers []string) CheckoutStep {
	done := make(map[CheckoutStep]bool, len(markers))
	for _, m := range markers {
		n, err := strconv.Atoi(strings.TrimSpace(m))
		if err != nil {
			continue
		}
		done[CheckoutStep(n)] = true
	}

	for _, step := range checkoutSteps {
		if !done[step] {
			return step
		}
	}
	return StepNone
}
