package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCardMethod() CardMethod {
	return CardMethod{
		Brand:  MethodVisa,
		Number: "4111111111111111",
		Expiry: "12/30",
		CVC:    "123",
		Holder: "Ada Lovelace",
	}
}

func cardPage(sel SelectorConfig) *fakePage {
	page := newFakePage()
	page.setVisible(sel.CardNumber, sel.CardExpiry, sel.CardCVC, sel.CardHolder, sel.CardPayButton)
	for _, s := range []string{sel.CardNumber, sel.CardExpiry, sel.CardCVC, sel.CardHolder} {
		page.s.attrs[s] = map[string]string{sel.CardInvalidAttr: "false"}
	}
	return page
}

func TestSelectPaymentOption(t *testing.T) {
	sel := DefaultConfig().Selectors

	tests := []struct {
		name     string
		labels   []string
		method   string
		selected bool
		clicked  []string
	}{
		{"exact label", []string{"Swish", "Visa"}, "swish", true, []string{sel.PaymentOption + "#0"}},
		{"case insensitive", []string{"Faktura", "VISA / Electron"}, "visa", true, []string{sel.PaymentOption + "#1"}},
		{"first match wins", []string{"Mastercard", "Mastercard Debit"}, "mastercard", true, []string{sel.PaymentOption + "#0"}},
		{"empty label skipped", []string{"", "Swish"}, "swish", true, []string{sel.PaymentOption + "#1"}},
		{"no match", []string{"Faktura", "Klarna"}, "swish", false, nil},
		{"nothing offered", nil, "visa", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage()
			for i, label := range tt.labels {
				page.s.options[sel.PaymentOption] = append(page.s.options[sel.PaymentOption], Option{Index: i, Fields: []string{label}})
			}

			selected, err := SelectPaymentOption(page, sel, tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.selected, selected)
			assert.Equal(t, tt.clicked, page.optionClickList())
		})
	}
}

func TestSelectPaymentOptionListError(t *testing.T) {
	sel := DefaultConfig().Selectors
	page := newFakePage()
	page.s.errs[sel.PaymentOption] = errBoom

	selected, err := SelectPaymentOption(page, sel, "swish")
	require.ErrorIs(t, err, errBoom)
	assert.False(t, selected)
}

func TestCardStrategyFinalizes(t *testing.T) {
	sel := DefaultConfig().Selectors
	page := cardPage(sel)
	method := testCardMethod()

	strategy, err := NewPaymentStrategy(method, time.Second)
	require.NoError(t, err)

	outcome, err := strategy.Pay(page, sel, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, outcome)
	assert.Equal(t, 1, page.clickCount(sel.CardPayButton))
	assert.Equal(t, map[string]string{
		sel.CardNumber: method.Number,
		sel.CardExpiry: method.Expiry,
		sel.CardCVC:    method.CVC,
		sel.CardHolder: method.Holder,
	}, page.s.inputs)
}

func TestCardStrategyWithoutFinalize(t *testing.T) {
	sel := DefaultConfig().Selectors
	page := cardPage(sel)

	strategy, err := NewPaymentStrategy(testCardMethod(), time.Second)
	require.NoError(t, err)

	outcome, err := strategy.Pay(page, sel, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingManualFinalization, outcome)
	assert.Zero(t, page.clickCount(sel.CardPayButton))
	assert.Len(t, page.s.inputs, 4)
}

func TestCardStrategyInvalidFieldNeverPays(t *testing.T) {
	sel := DefaultConfig().Selectors

	for _, finalize := range []bool{true, false} {
		page := cardPage(sel)
		page.s.attrs[sel.CardExpiry][sel.CardInvalidAttr] = "true"
		page.s.attrs[sel.CardCVC][sel.CardInvalidAttr] = " TRUE "

		strategy, err := NewPaymentStrategy(testCardMethod(), time.Second)
		require.NoError(t, err)

		outcome, err := strategy.Pay(page, sel, finalize)
		assert.Equal(t, OutcomeInvalidInput, outcome)

		var invalid *InvalidFieldsError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, []string{"expiry", "cvc"}, invalid.Fields)

		assert.Zero(t, page.clickCount(sel.CardPayButton), "finalize=%v", finalize)
		assert.Len(t, page.s.inputs, 4, "every field is still filled in")
	}
}

func TestCardStrategyMissingField(t *testing.T) {
	sel := DefaultConfig().Selectors
	page := cardPage(sel)
	delete(page.s.visible, sel.CardCVC)

	strategy, err := NewPaymentStrategy(testCardMethod(), time.Second)
	require.NoError(t, err)

	outcome, err := strategy.Pay(page, sel, true)
	assert.Equal(t, OutcomeInterrupted, outcome)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.Zero(t, page.clickCount(sel.CardPayButton))
}

func TestSwishStrategy(t *testing.T) {
	sel := DefaultConfig().Selectors
	method := SwishMethod{Phone: "0701234567"}

	t.Run("finalize", func(t *testing.T) {
		page := newFakePage()
		page.setVisible(sel.SwishPhone, sel.SwishConfirm)

		strategy, err := NewPaymentStrategy(method, time.Second)
		require.NoError(t, err)

		outcome, err := strategy.Pay(page, sel, true)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFinalized, outcome)
		assert.Equal(t, method.Phone, page.s.inputs[sel.SwishPhone])
		assert.Equal(t, 1, page.clickCount(sel.SwishConfirm))
	})

	t.Run("without finalize", func(t *testing.T) {
		page := newFakePage()
		page.setVisible(sel.SwishPhone, sel.SwishConfirm)

		strategy, err := NewPaymentStrategy(method, time.Second)
		require.NoError(t, err)

		outcome, err := strategy.Pay(page, sel, false)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAwaitingManualFinalization, outcome)
		assert.Equal(t, method.Phone, page.s.inputs[sel.SwishPhone])
		assert.Zero(t, page.clickCount(sel.SwishConfirm))
	})

	t.Run("phone field missing", func(t *testing.T) {
		page := newFakePage()

		strategy, err := NewPaymentStrategy(method, time.Second)
		require.NoError(t, err)

		outcome, err := strategy.Pay(page, sel, true)
		require.ErrorIs(t, err, ErrWaitTimeout)
		assert.Equal(t, OutcomeInterrupted, outcome)
	})
}

func TestNewPaymentStrategy(t *testing.T) {
	s, err := NewPaymentStrategy(SwishMethod{Phone: "1"}, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &swishStrategy{}, s)

	s, err = NewPaymentStrategy(testCardMethod(), time.Second)
	require.NoError(t, err)
	assert.IsType(t, &cardStrategy{}, s)

	_, err = NewPaymentStrategy(nil, time.Second)
	assert.Error(t, err)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "finalized", OutcomeFinalized.String())
	assert.Equal(t, "awaiting-manual-finalization", OutcomeAwaitingManualFinalization.String())
	assert.Equal(t, "invalid-input", OutcomeInvalidInput.String())
	assert.Equal(t, "selection-failed", OutcomeSelectionFailed.String())
	assert.Equal(t, "interrupted", OutcomeInterrupted.String())
	assert.Equal(t, "none", OutcomeNone.String())
}

func TestContains(t *testing.T) {
	tests := []struct {
		s        string
		substrs  []string
		expected bool
	}{
		{"PostNord Hempaket", []string{"hempaket"}, true},
		{"PostNord Hempaket", []string{"POSTNORD"}, true},
		{"PostNord Hempaket", []string{"dhl"}, false},
		{"PostNord Hempaket", []string{"dhl", "postnord"}, true},
		{"PostNord Hempaket", []string{"dhl", "budbee"}, false},
		{"", []string{"swish"}, false},
		{"swish", []string{""}, true},
	}

	for _, test := range tests {
		result := contains(test.s, test.substrs...)
		if result != test.expected {
			t.Errorf("contains(%q, %v) = %v, expected %v", test.s, test.substrs, result, test.expected)
		}
	}
}
