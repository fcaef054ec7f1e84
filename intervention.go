package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reason classifies why a human has to take over.
type Reason string

const (
	ReasonCartLines          Reason = "cart-lines"
	ReasonCartQuantity       Reason = "cart-quantity"
	ReasonCartUnreadable     Reason = "cart-unreadable"
	ReasonProceedFailed      Reason = "proceed-failed"
	ReasonTermsFailed        Reason = "terms-failed"
	ReasonDeliveryNotFound   Reason = "delivery-not-found"
	ReasonPaymentSelection   Reason = "payment-selection-failed"
	ReasonPaymentFormInvalid Reason = "payment-form-invalid"
	ReasonPaymentError       Reason = "payment-error"
	ReasonPaymentConfig      Reason = "payment-config"
	ReasonFinalizeDisabled   Reason = "finalize-disabled"
	ReasonCheckoutComplete   Reason = "checkout-complete"
)

// Intervention asks the operator to act in the browser. It never stops the
// run.
type Intervention struct {
	Stage  State
	Reason Reason
	Detail string
	At     time.Time
}

func (i Intervention) String() string {
	if i.Detail == "" {
		return fmt.Sprintf("%s: %s", i.Stage, i.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Stage, i.Reason, i.Detail)
}

type InterventionSink interface {
	Intervene(Intervention)
}

// ConsoleSink prints interventions for the operator and records them in the
// run log.
type ConsoleSink struct {
	log zerolog.Logger
}

func NewConsoleSink(log zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{log: log.With().Str("component", "intervention").Logger()}
}

func (s *ConsoleSink) Intervene(i Intervention) {
	s.log.Warn().
		Str("stage", i.Stage.String()).
		Str("reason", string(i.Reason)).
		Str("detail", i.Detail).
		Msg("manual intervention required")

	fmt.Printf(T("manual_intervention")+"\n", T("reason_"+string(i.Reason)))
	if i.Detail != "" {
		fmt.Printf("   %s\n", i.Detail)
	}
}

// InterventionRecorder keeps every intervention in memory and forwards them.
type InterventionRecorder struct {
	mu     sync.Mutex
	events []Intervention
	next   InterventionSink
}

func NewInterventionRecorder(next InterventionSink) *InterventionRecorder {
	return &InterventionRecorder{next: next}
}

func (r *InterventionRecorder) Intervene(i Intervention) {
	r.mu.Lock()
	r.events = append(r.events, i)
	r.mu.Unlock()

	if r.next != nil {
		r.next.Intervene(i)
	}
}

func (r *InterventionRecorder) Events() []Intervention {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intervention, len(r.events))
	copy(out, r.events)
	return out
}

// Has reports whether an intervention with the given reason was raised.
func (r *InterventionRecorder) Has(reason Reason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Reason == reason {
			return true
		}
	}
	return false
}
