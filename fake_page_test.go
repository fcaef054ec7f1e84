package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeState is the scripted storefront behind fakePage. Hooks run with mu
// held and may mutate the state directly.
type fakeState struct {
	mu sync.Mutex

	visible             map[string]bool
	visibleAfterReloads map[string]int
	hidden              map[string]bool
	gates               map[string]chan struct{}

	attrs   map[string]map[string]string
	values  map[string]string
	counts  map[string]int
	texts   map[string][]string
	options map[string][]Option
	errs    map[string]error

	onClick   map[string]func(s *fakeState)
	onReload  func(s *fakeState)
	reloadErr error

	clicks       []string
	submits      []string
	inputs       map[string]string
	optionClicks []string
	navigations  []string
	reloads      int
	navWaits     int
}

type fakePage struct {
	s   *fakeState
	ctx context.Context
}

func newFakePage() *fakePage {
	return &fakePage{
		s: &fakeState{
			visible:             map[string]bool{},
			visibleAfterReloads: map[string]int{},
			hidden:              map[string]bool{},
			gates:               map[string]chan struct{}{},
			attrs:               map[string]map[string]string{},
			values:              map[string]string{},
			counts:              map[string]int{},
			texts:               map[string][]string{},
			options:             map[string][]Option{},
			errs:                map[string]error{},
			onClick:             map[string]func(s *fakeState){},
			inputs:              map[string]string{},
		},
		ctx: context.Background(),
	}
}

func (p *fakePage) Context(ctx context.Context) Page {
	return &fakePage{s: p.s, ctx: ctx}
}

func (s *fakeState) isVisible(selector string) bool {
	if s.visible[selector] {
		return true
	}
	n, ok := s.visibleAfterReloads[selector]
	return ok && s.reloads >= n
}

func (p *fakePage) Navigate(url string, timeout time.Duration) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.navigations = append(p.s.navigations, url)
	return p.s.errs[url]
}

func (p *fakePage) Reload() error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.reloads++
	if p.s.onReload != nil {
		p.s.onReload(p.s)
	}
	return p.s.reloadErr
}

// WaitVisible never sleeps: a selector is visible, gated or times out at once.
func (p *fakePage) WaitVisible(selector string, timeout time.Duration) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}

	p.s.mu.Lock()
	if err := p.s.errs[selector]; err != nil {
		p.s.mu.Unlock()
		return err
	}
	if p.s.isVisible(selector) {
		p.s.mu.Unlock()
		return nil
	}
	gate := p.s.gates[selector]
	p.s.mu.Unlock()

	if gate == nil {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
	}
	select {
	case <-gate:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *fakePage) WaitHidden(selector string, timeout time.Duration) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.hidden[selector] {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
}

func (p *fakePage) WaitNavigation(action func() error) error {
	p.s.mu.Lock()
	p.s.navWaits++
	p.s.mu.Unlock()
	return action()
}

func (p *fakePage) Click(selector string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.errs[selector]; err != nil {
		return err
	}
	p.s.clicks = append(p.s.clicks, selector)
	if hook := p.s.onClick[selector]; hook != nil {
		hook(p.s)
	}
	return nil
}

func (p *fakePage) Input(selector, text string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.errs[selector]; err != nil {
		return err
	}
	p.s.inputs[selector] = text
	return nil
}

func (p *fakePage) Submit(selector string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.submits = append(p.s.submits, selector)
	return nil
}

func (p *fakePage) Scroll(y int) error { return nil }

func (p *fakePage) Attribute(selector, name string) (string, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.errs[selector]; err != nil {
		return "", err
	}
	return p.s.attrs[selector][name], nil
}

func (p *fakePage) Value(selector string) (string, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	v, ok := p.s.values[selector]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return v, nil
}

func (p *fakePage) Count(selector string) (int, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.counts[selector], p.s.errs[selector]
}

func (p *fakePage) Texts(selector string) ([]string, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.errs[selector]; err != nil {
		return nil, err
	}
	return append([]string(nil), p.s.texts[selector]...), nil
}

func (p *fakePage) Options(q OptionQuery) ([]Option, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.errs[q.Item]; err != nil {
		return nil, err
	}
	return append([]Option(nil), p.s.options[q.Item]...), nil
}

func (p *fakePage) ClickOption(q OptionQuery, index int) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.optionClicks = append(p.s.optionClicks, fmt.Sprintf("%s#%d", q.Item, index))
	return nil
}

func (p *fakePage) setVisible(selectors ...string) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	for _, s := range selectors {
		p.s.visible[s] = true
	}
}

func (p *fakePage) gate(selector string) chan struct{} {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	ch := make(chan struct{})
	p.s.gates[selector] = ch
	return ch
}

func (p *fakePage) clickCount(selector string) int {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	n := 0
	for _, c := range p.s.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

func (p *fakePage) optionClickList() []string {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return append([]string(nil), p.s.optionClicks...)
}

func (p *fakePage) reloadCount() int {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.reloads
}

type fakeJar struct {
	mu       sync.Mutex
	cookies  []Cookie
	setCalls int
	getErr   error
	setErr   error
}

func (j *fakeJar) Cookies() ([]Cookie, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.getErr != nil {
		return nil, j.getErr
	}
	return append([]Cookie(nil), j.cookies...), nil
}

func (j *fakeJar) SetCookies(cookies []Cookie) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setCalls++
	if j.setErr != nil {
		return j.setErr
	}
	j.cookies = append([]Cookie(nil), cookies...)
	return nil
}

var errBoom = errors.New("boom")
