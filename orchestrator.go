package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// State is a stage of a purchase run. Runs only ever move forward.
type State int

const (
	StateInit State = iota
	StateAuthenticated
	StateBrowsing
	StateAwaitingAvailability
	StateInCart
	StateCheckoutTerms
	StateCheckoutDelivery
	StateCheckoutPayment
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticated:
		return "authenticated"
	case StateBrowsing:
		return "browsing"
	case StateAwaitingAvailability:
		return "awaiting-availability"
	case StateInCart:
		return "in-cart"
	case StateCheckoutTerms:
		return "checkout-terms"
	case StateCheckoutDelivery:
		return "checkout-delivery"
	case StateCheckoutPayment:
		return "checkout-payment"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CartState is what the basket looked like right after adding the product.
type CartState struct {
	LineCount int
	Quantity  int
}

// Automatable reports whether checkout may continue without the operator.
func (c CartState) Automatable() bool {
	return c.LineCount == 1 && c.Quantity == 1
}

// Report summarises a run. Done means the orchestration finished, not that
// the purchase was paid for; see Outcome.
type Report struct {
	RunID         string
	State         State
	Attempts      int
	Cart          CartState
	Outcome       Outcome
	Interventions []Intervention
	Elapsed       time.Duration
}

var errDeliveryNotFound = errors.New("delivery option not found")

type Orchestrator struct {
	config   *Config
	page     Page
	jar      CookieJar
	sessions *SessionStore
	recorder *InterventionRecorder
	log      zerolog.Logger
	rand     *rand.Rand

	state  State
	report Report
}

func NewOrchestrator(config *Config, page Page, jar CookieJar, sessions *SessionStore, sink InterventionSink, log zerolog.Logger, runID string) *Orchestrator {
	return &Orchestrator{
		config:   config,
		page:     page,
		jar:      jar,
		sessions: sessions,
		recorder: NewInterventionRecorder(sink),
		log:      log.With().Str("component", "orchestrator").Logger(),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		report:   Report{RunID: runID},
	}
}

// Run drives one purchase from login to the payment form. Only failures
// without a recovery path are returned; everything else ends up as an
// intervention in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() {
		o.report.Elapsed = time.Since(start)
		o.report.Interventions = o.recorder.Events()
	}()

	if err := o.authenticate(ctx); err != nil {
		return &o.report, err
	}
	o.advance(StateAuthenticated)

	o.browse(ctx)
	o.advance(StateBrowsing)

	o.advance(StateAwaitingAvailability)
	if err := o.addToCart(ctx); err != nil {
		return &o.report, err
	}
	o.advance(StateInCart)

	o.verifyCart(ctx)
	fmt.Println(T("checkout_waiting_page"))
	if err := o.page.Context(ctx).WaitVisible(o.config.Selectors.CheckoutBody, o.config.manualWaitTimeout()); err != nil {
		return &o.report, fmt.Errorf("checkout page never opened: %w", err)
	}
	o.advance(StateCheckoutTerms)

	if !o.checkpoint(ctx, "accepting terms") {
		return o.finish(), nil
	}
	o.acceptTerms(ctx)
	o.advance(StateCheckoutDelivery)

	step, ok := o.step(ctx, "delivery method")
	if !ok {
		return o.finish(), nil
	}
	if step == StepTerms {
		o.log.Warn().Msg("terms step still open after accepting terms, prefilled customer details may be missing")
		fmt.Println(T("checkout_prefill_missing"))
	}

	if err := o.page.Context(ctx).WaitVisible(o.config.Selectors.DeliverySection, o.config.manualWaitTimeout()); err != nil {
		return &o.report, fmt.Errorf("delivery options never appeared: %w", err)
	}
	if err := o.raceDelivery(ctx); err != nil {
		return &o.report, err
	}
	o.advance(StateCheckoutPayment)

	if !o.checkpoint(ctx, "payment method") {
		return o.finish(), nil
	}
	o.pay(ctx)

	return o.finish(), nil
}

func (o *Orchestrator) finish() *Report {
	o.advance(StateDone)
	return &o.report
}

func (o *Orchestrator) advance(next State) {
	if next <= o.state {
		o.log.Error().Str("from", o.state.String()).Str("to", next.String()).Msg("refusing backward transition")
		return
	}
	o.log.Info().Str("from", o.state.String()).Str("to", next.String()).Msg("state transition")
	o.state = next
	o.report.State = next
}

func (o *Orchestrator) intervene(reason Reason, detail string) {
	o.recorder.Intervene(Intervention{
		Stage:  o.state,
		Reason: reason,
		Detail: detail,
		At:     time.Now(),
	})
}

func (o *Orchestrator) authenticate(ctx context.Context) error {
	if o.sessions.Load(o.jar) {
		o.log.Info().Msg("resumed saved session")
	} else if err := o.login(ctx); err != nil {
		return err
	}

	if err := o.sessions.Save(o.jar); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (o *Orchestrator) login(ctx context.Context) error {
	username, password, err := o.config.Credentials()
	if err != nil {
		return err
	}

	sel := o.config.Selectors
	page := o.page.Context(ctx)

	fmt.Printf(T("login_loading_start")+"\n", o.config.StartURL)
	if err := page.Navigate(o.config.StartURL, o.config.pageLoadTimeout()); err != nil {
		return fmt.Errorf("failed to load start page: %w", err)
	}

	o.dismissCookieNotice(page)

	if err := page.WaitVisible(sel.LoginTrigger, o.config.pageLoadTimeout()); err != nil {
		return fmt.Errorf("login button: %w", err)
	}
	if err := page.Click(sel.LoginTrigger); err != nil {
		return fmt.Errorf("failed to open login: %w", err)
	}
	for _, s := range []string{sel.LoginModal, sel.LoginForm} {
		if err := page.WaitVisible(s, o.config.actionTimeout()); err != nil {
			return fmt.Errorf("login form: %w", err)
		}
	}
	fmt.Println(T("login_modal_opened"))

	if err := page.Input(sel.LoginUsername, username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	if err := page.Input(sel.LoginPassword, password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	if err := page.WaitNavigation(func() error { return page.Submit(sel.LoginPassword) }); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}

	if err := page.WaitHidden(sel.LoginTrigger, o.config.loginTimeout()); err != nil {
		return fmt.Errorf("login did not complete: %w", err)
	}

	o.log.Info().Msg("logged in")
	fmt.Println(T("login_done"))
	return nil
}

// dismissCookieNotice declines the consent banner if one shows up. A missing
// banner is fine.
func (o *Orchestrator) dismissCookieNotice(page Page) {
	lo, hi := o.config.ScrollMin, o.config.ScrollMax
	if hi > lo {
		if err := page.Scroll(lo + o.rand.Intn(hi-lo+1)); err != nil {
			o.log.Debug().Err(err).Msg("scroll failed")
		}
	}

	fmt.Println(T("cookie_waiting"))
	sel := o.config.Selectors.CookieDecline
	if err := page.WaitVisible(sel, o.config.cookieNoticeTimeout()); err != nil {
		fmt.Println(T("cookie_not_found"))
		return
	}
	if err := page.Click(sel); err != nil {
		o.log.Debug().Err(err).Msg("failed to decline cookies")
		fmt.Println(T("cookie_not_found"))
		return
	}
	fmt.Println(T("cookie_declined"))
}

// browse opens the product page. A failed load is left to the poller, which
// reloads anyway.
func (o *Orchestrator) browse(ctx context.Context) {
	fmt.Printf(T("product_navigating")+"\n", o.config.ProductURL)
	if err := o.page.Context(ctx).Navigate(o.config.ProductURL, o.config.pageLoadTimeout()); err != nil {
		o.log.Warn().Err(err).Msg("product page did not load cleanly")
	}
}

func (o *Orchestrator) addToCart(ctx context.Context) error {
	sel := o.config.Selectors.BuyButton

	poller := NewAvailabilityPoller(o.page, sel, o.config.refreshInterval(), o.log)
	attempts, err := poller.Wait(ctx)
	o.report.Attempts = attempts
	if err != nil {
		return fmt.Errorf("stopped waiting for availability: %w", err)
	}

	page := o.page.Context(ctx)
	if err := page.WaitNavigation(func() error { return page.Click(sel) }); err != nil {
		return fmt.Errorf("failed to add to cart: %w", err)
	}
	fmt.Println(T("cart_added"))
	return nil
}

// verifyCart reads the basket once and clicks through to checkout only for a
// single line of quantity one. Anything else is handed to the operator, who
// proceeds manually.
func (o *Orchestrator) verifyCart(ctx context.Context) {
	page := o.page.Context(ctx)
	sel := o.config.Selectors

	cart, err := readCart(page, sel, o.config.actionTimeout())
	if err != nil {
		o.intervene(ReasonCartUnreadable, err.Error())
		return
	}
	o.report.Cart = cart

	o.log.Info().Int("lines", cart.LineCount).Int("quantity", cart.Quantity).Msg("cart contents")
	fmt.Printf(T("cart_state")+"\n", cart.LineCount, cart.Quantity)

	detail := fmt.Sprintf("lines=%d quantity=%d", cart.LineCount, cart.Quantity)
	if cart.LineCount != 1 {
		o.intervene(ReasonCartLines, detail)
	}
	if cart.Quantity != 1 {
		o.intervene(ReasonCartQuantity, detail)
	}
	if !cart.Automatable() {
		return
	}

	fmt.Println(T("cart_ok"))
	if err := page.WaitVisible(sel.ToCheckoutButton, o.config.actionTimeout()); err != nil {
		o.intervene(ReasonProceedFailed, err.Error())
		return
	}
	if err := page.Click(sel.ToCheckoutButton); err != nil {
		o.intervene(ReasonProceedFailed, err.Error())
	}
}

func readCart(page Page, sel SelectorConfig, timeout time.Duration) (CartState, error) {
	if err := page.WaitVisible(sel.BasketContainer, timeout); err != nil {
		return CartState{}, fmt.Errorf("basket: %w", err)
	}

	lines, err := page.Count(sel.BasketLines)
	if err != nil {
		return CartState{}, fmt.Errorf("failed to count basket lines: %w", err)
	}

	raw, err := page.Value(sel.BasketQuantity)
	if err != nil {
		return CartState{LineCount: lines}, fmt.Errorf("failed to read quantity: %w", err)
	}

	// An unreadable quantity counts as 0 and blocks automatic checkout.
	quantity, _ := strconv.Atoi(strings.TrimSpace(raw))

	return CartState{LineCount: lines, Quantity: quantity}, nil
}

// step reads the current checkout step and prints it. ok is false when the
// checkout has nothing left to automate.
func (o *Orchestrator) step(ctx context.Context, label string) (CheckoutStep, bool) {
	step, err := CurrentStep(o.page.Context(ctx), o.config.Selectors)
	if err != nil {
		o.log.Warn().Err(err).Msg("could not determine checkout step")
		return step, true
	}

	o.log.Info().Str("step", step.String()).Msg("checkout step")
	if step == StepNone {
		o.intervene(ReasonCheckoutComplete, "all checkout steps are marked done")
		return step, false
	}

	fmt.Printf(T("checkout_step")+"\n", int(step), label)
	return step, true
}

func (o *Orchestrator) checkpoint(ctx context.Context, label string) bool {
	_, ok := o.step(ctx, label)
	return ok
}

func (o *Orchestrator) acceptTerms(ctx context.Context) {
	page := o.page.Context(ctx)
	sel := o.config.Selectors.AcceptTermsButton

	if err := page.WaitVisible(sel, o.config.actionTimeout()); err != nil {
		o.intervene(ReasonTermsFailed, err.Error())
		return
	}
	if err := page.WaitNavigation(func() error { return page.Click(sel) }); err != nil {
		o.intervene(ReasonTermsFailed, err.Error())
	}
}

type raceResult struct {
	automatic bool
	err       error
}

// raceDelivery tries to pick the preferred delivery option while watching
// for the payment section. Only the payment section appearing ends the race,
// whoever made it appear. A failed pick is reported and the operator is left
// to choose.
func (o *Orchestrator) raceDelivery(ctx context.Context) error {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, 2)

	go func() {
		results <- raceResult{automatic: true, err: o.chooseDelivery(o.page.Context(raceCtx))}
	}()
	go func() {
		err := o.page.Context(raceCtx).WaitVisible(o.config.Selectors.PaymentSection, o.config.manualWaitTimeout())
		results <- raceResult{err: err}
	}()

	for {
		select {
		case r := <-results:
			if r.automatic {
				if r.err != nil {
					o.log.Warn().Err(r.err).Msg("automatic delivery selection failed")
					o.intervene(ReasonDeliveryNotFound, r.err.Error())
					continue
				}
				o.log.Info().Msg("delivery option selected")
				fmt.Println(T("delivery_selected"))
				continue
			}
			if r.err != nil {
				return fmt.Errorf("payment options never appeared: %w", r.err)
			}
			o.log.Info().Msg("payment options visible")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) chooseDelivery(page Page) error {
	sel := o.config.Selectors
	want := o.config.Delivery

	q := OptionQuery{
		Item:   sel.DeliveryOption,
		Fields: []string{sel.DeliveryCarrierName, sel.DeliveryServiceLabel},
		Target: sel.DeliveryRadio,
	}

	options, err := page.Options(q)
	if err != nil {
		return fmt.Errorf("failed to list delivery options: %w", err)
	}

	match := -1
	for _, opt := range options {
		if contains(opt.Field(0), want.Carrier) && contains(opt.Field(1), want.Service) {
			match = opt.Index
			break
		}
	}
	if match < 0 {
		return fmt.Errorf("%w: %s %s among %d offered", errDeliveryNotFound, want.Carrier, want.Service, len(options))
	}

	if err := page.ClickOption(q, match); err != nil {
		return fmt.Errorf("failed to select delivery option: %w", err)
	}
	if err := page.WaitVisible(sel.DeliveryNextButton, o.config.actionTimeout()); err != nil {
		return fmt.Errorf("delivery next button: %w", err)
	}
	if err := page.Click(sel.DeliveryNextButton); err != nil {
		return fmt.Errorf("failed to continue from delivery: %w", err)
	}
	return nil
}

// pay selects the configured payment option and runs its strategy. Nothing
// here stops the run; every failure is an intervention.
func (o *Orchestrator) pay(ctx context.Context) {
	page := o.page.Context(ctx)
	sel := o.config.Selectors

	method, err := o.config.PaymentMethod()
	if err != nil {
		o.report.Outcome = OutcomeSelectionFailed
		o.intervene(ReasonPaymentConfig, err.Error())
		return
	}
	strategy, err := NewPaymentStrategy(method, o.config.actionTimeout())
	if err != nil {
		o.report.Outcome = OutcomeSelectionFailed
		o.intervene(ReasonPaymentConfig, err.Error())
		return
	}

	selected, err := SelectPaymentOption(page, sel, method.Name())
	if err != nil || !selected {
		detail := fmt.Sprintf("no payment option matching %q", method.Name())
		if err != nil {
			detail = err.Error()
		}
		o.intervene(ReasonPaymentSelection, detail)
	}

	outcome, err := strategy.Pay(page, sel, o.config.FinalizePayment)
	switch {
	case outcome == OutcomeInvalidInput:
		o.intervene(ReasonPaymentFormInvalid, err.Error())
	case err != nil:
		if !selected {
			outcome = OutcomeSelectionFailed
		}
		o.intervene(ReasonPaymentError, err.Error())
	case outcome == OutcomeAwaitingManualFinalization:
		o.intervene(ReasonFinalizeDisabled, "")
	}

	o.report.Outcome = outcome
	o.log.Info().Str("method", method.Name()).Str("outcome", outcome.String()).Msg("payment step finished")
	fmt.Printf(T("payment_finished")+"\n", method.Name(), outcome)
}
