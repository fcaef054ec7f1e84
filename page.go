package main

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWaitTimeout is returned when an element did not reach the awaited
	// state before the timeout elapsed.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrElementNotFound is returned by reads on selectors that match nothing.
	ErrElementNotFound = errors.New("element not found")
)

// Page is the part of a browser tab the checkout flow drives. Every call
// blocks until the browser answers or the timeout elapses. A timeout of zero
// means "no limit": the call only returns early when the page's context is
// cancelled.
type Page interface {
	// Context returns a view of the page bound to ctx.
	Context(ctx context.Context) Page

	Navigate(url string, timeout time.Duration) error
	Reload() error

	WaitVisible(selector string, timeout time.Duration) error
	WaitHidden(selector string, timeout time.Duration) error
	// WaitNavigation runs action and waits for the navigation it triggers.
	WaitNavigation(action func() error) error

	Click(selector string) error
	Input(selector, text string) error
	// Submit presses Enter inside the element.
	Submit(selector string) error
	Scroll(y int) error

	Attribute(selector, name string) (string, error)
	Value(selector string) (string, error)
	Count(selector string) (int, error)
	Texts(selector string) ([]string, error)

	// Options lists every element matching q.Item with the trimmed text of
	// each of q.Fields inside it.
	Options(q OptionQuery) ([]Option, error)
	ClickOption(q OptionQuery, index int) error
}

// CookieJar is the cookie store of the browser's default context.
type CookieJar interface {
	Cookies() ([]Cookie, error)
	SetCookies(cookies []Cookie) error
}

// OptionQuery describes a rendered list of choices (payment types, delivery
// rows). Fields and Target are relative to each item; an empty Target clicks
// the item itself.
type OptionQuery struct {
	Item   string
	Fields []string
	Target string
}

type Option struct {
	Index  int
	Fields []string
}

// Field returns the i-th label of the option or "" when it was absent.
func (o Option) Field(i int) string {
	if i < 0 || i >= len(o.Fields) {
		return ""
	}
	return o.Fields[i]
}
