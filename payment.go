package main

import (
	"fmt"
	"strings"
	"time"
)

const (
	MethodSwish      = "swish"
	MethodVisa       = "visa"
	MethodMastercard = "mastercard"
)

// Outcome is how far the payment step got.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFinalized
	OutcomeAwaitingManualFinalization
	OutcomeInvalidInput
	OutcomeSelectionFailed
	// OutcomeInterrupted means the strategy failed part way, typically
	// because a field never rendered.
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinalized:
		return "finalized"
	case OutcomeAwaitingManualFinalization:
		return "awaiting-manual-finalization"
	case OutcomeInvalidInput:
		return "invalid-input"
	case OutcomeSelectionFailed:
		return "selection-failed"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "none"
	}
}

// PaymentMethod is either a SwishMethod or a CardMethod.
type PaymentMethod interface {
	// Name is matched against the labels of the offered payment options.
	Name() string
}

type SwishMethod struct {
	Phone string
}

func (SwishMethod) Name() string { return MethodSwish }

// CardMethod covers visa and mastercard; they share one form.
type CardMethod struct {
	Brand  string
	Number string
	Expiry string
	CVC    string
	Holder string
}

func (m CardMethod) Name() string { return m.Brand }

// PaymentStrategy fills in the payment form for one method.
type PaymentStrategy interface {
	Pay(page Page, sel SelectorConfig, finalize bool) (Outcome, error)
}

func NewPaymentStrategy(method PaymentMethod, timeout time.Duration) (PaymentStrategy, error) {
	switch m := method.(type) {
	case SwishMethod:
		return &swishStrategy{method: m, timeout: timeout}, nil
	case CardMethod:
		return &cardStrategy{method: m, timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("no payment strategy for %T", method)
	}
}

// SelectPaymentOption clicks the first offered payment option whose label
// contains the method name, ignoring case. It reports false when nothing
// matched and the page was left alone.
func SelectPaymentOption(page Page, sel SelectorConfig, method string) (bool, error) {
	q := OptionQuery{
		Item:   sel.PaymentOption,
		Fields: []string{sel.PaymentOptionLabel},
	}

	options, err := page.Options(q)
	if err != nil {
		return false, fmt.Errorf("failed to list payment options: %w", err)
	}

	for _, opt := range options {
		label := opt.Field(0)
		if label == "" || !contains(label, method) {
			continue
		}
		if err := page.ClickOption(q, opt.Index); err != nil {
			return false, fmt.Errorf("failed to click payment option %q: %w", label, err)
		}
		return true, nil
	}
	return false, nil
}

type swishStrategy struct {
	method  SwishMethod
	timeout time.Duration
}

func (s *swishStrategy) Pay(page Page, sel SelectorConfig, finalize bool) (Outcome, error) {
	if err := page.WaitVisible(sel.SwishPhone, s.timeout); err != nil {
		return OutcomeInterrupted, fmt.Errorf("swish phone field: %w", err)
	}
	if err := page.Input(sel.SwishPhone, s.method.Phone); err != nil {
		return OutcomeInterrupted, fmt.Errorf("failed to enter swish phone number: %w", err)
	}

	if !finalize {
		return OutcomeAwaitingManualFinalization, nil
	}

	if err := page.WaitVisible(sel.SwishConfirm, s.timeout); err != nil {
		return OutcomeInterrupted, fmt.Errorf("swish confirm button: %w", err)
	}
	if err := page.Click(sel.SwishConfirm); err != nil {
		return OutcomeInterrupted, fmt.Errorf("failed to confirm swish payment: %w", err)
	}
	return OutcomeFinalized, nil
}

type cardStrategy struct {
	method  CardMethod
	timeout time.Duration
}

type cardField struct {
	name     string
	selector string
	value    string
}

func (s *cardStrategy) fields(sel SelectorConfig) []cardField {
	return []cardField{
		{"number", sel.CardNumber, s.method.Number},
		{"expiry", sel.CardExpiry, s.method.Expiry},
		{"cvc", sel.CardCVC, s.method.CVC},
		{"holder", sel.CardHolder, s.method.Holder},
	}
}

// Pay fills every field before deciding, so the operator sees one complete
// form. The pay button is only touched when the storefront marked no field
// invalid.
func (s *cardStrategy) Pay(page Page, sel SelectorConfig, finalize bool) (Outcome, error) {
	var invalid []string

	for _, f := range s.fields(sel) {
		if err := page.WaitVisible(f.selector, s.timeout); err != nil {
			return OutcomeInterrupted, fmt.Errorf("card %s field: %w", f.name, err)
		}
		if err := page.Input(f.selector, f.value); err != nil {
			return OutcomeInterrupted, fmt.Errorf("failed to enter card %s: %w", f.name, err)
		}

		state, err := page.Attribute(f.selector, sel.CardInvalidAttr)
		if err != nil {
			return OutcomeInterrupted, fmt.Errorf("failed to read card %s validity: %w", f.name, err)
		}
		if strings.EqualFold(strings.TrimSpace(state), "true") {
			invalid = append(invalid, f.name)
		}
	}

	if len(invalid) > 0 {
		return OutcomeInvalidInput, &InvalidFieldsError{Fields: invalid}
	}

	if !finalize {
		return OutcomeAwaitingManualFinalization, nil
	}

	if err := page.WaitVisible(sel.CardPayButton, s.timeout); err != nil {
		return OutcomeInterrupted, fmt.Errorf("card pay button: %w", err)
	}
	if err := page.Click(sel.CardPayButton); err != nil {
		return OutcomeInterrupted, fmt.Errorf("failed to click pay: %w", err)
	}
	return OutcomeFinalized, nil
}

// InvalidFieldsError lists the payment fields the storefront rejected.
type InvalidFieldsError struct {
	Fields []string
}

func (e *InvalidFieldsError) Error() string {
	return "payment form rejected fields: " + strings.Join(e.Fields, ", ")
}

// contains reports whether s contains any of substrs, ignoring case.
func contains(s string, substrs ...string) bool {
	s = strings.ToLower(s)
	for _, substr := range substrs {
		if strings.Contains(s, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
