package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

// Automation owns the browser process and its single tab.
type Automation struct {
	config   *Config
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	stopChan chan bool
	log      zerolog.Logger
}

func NewAutomation(config *Config, log zerolog.Logger) *Automation {
	return &Automation{
		config:   config,
		stopChan: make(chan bool, 1),
		log:      log.With().Str("component", "browser").Logger(),
	}
}

func (a *Automation) Close() {
	select {
	case a.stopChan <- true:
	default:
	}

	fmt.Println(T("cleaning_up"))

	if a.page != nil {
		a.page.Close()
	}

	if a.browser != nil {
		a.browser.Close()
	}

	if a.launcher != nil {
		a.launcher.Cleanup()
	}

	fmt.Println(T("browser_destroyed"))
}

func (a *Automation) isBrowserAlive() bool {
	if a.browser == nil {
		return false
	}

	if _, err := a.browser.Version(); err != nil {
		a.log.Debug().Err(err).Msg("browser version check failed")
		return false
	}

	if a.page != nil {
		if _, err := a.page.Info(); err != nil {
			a.log.Debug().Err(err).Msg("page info check failed")
			return false
		}
	}

	return true
}

func (a *Automation) checkBrowserOrExit() {
	if !a.isBrowserAlive() {
		fmt.Println(T("browser_closed_by_user"))
		fmt.Println(T("shutting_down"))
		a.log.Info().Msg("browser closed by operator")
		os.Exit(0)
	}
}

func (a *Automation) watchBrowser() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.checkBrowserOrExit()
		}
	}
}

func (a *Automation) setupBrowser() error {
	fmt.Println(T("browser_launching"))

	// Leakless deadlocks on Windows: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	a.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(a.config.Headless)

	// Must be set before Bin().
	if a.config.BrowserProfilePath != "" {
		a.launcher = a.launcher.UserDataDir(a.config.BrowserProfilePath)
		a.log.Debug().Str("path", a.config.BrowserProfilePath).Msg("browser profile set")
	}

	if chromeExists {
		a.launcher = a.launcher.Bin(chromePath)
		fmt.Println(T("browser_using_system_chrome"))
		a.log.Debug().Str("path", chromePath).Msg("using system chrome")
	} else {
		fmt.Println(T("browser_chrome_not_found"))
	}

	url, err := a.launcher.Launch()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "ProcessSingleton") || strings.Contains(errMsg, "SingletonLock") {
			fmt.Println(T("error_chrome_already_running"))
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	a.browser = browser

	go a.watchBrowser()
	a.log.Debug().Msg("browser watcher started")

	fmt.Println(T("browser_launched"))
	return nil
}

// openPage creates the stealth tab every later step runs in.
func (a *Automation) openPage() (*rodPage, error) {
	if a.browser == nil {
		return nil, errors.New("browser not started")
	}

	page, err := stealth.Page(a.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             a.config.ViewportWidth,
		Height:            a.config.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to set viewport")
	}

	a.page = page
	return &rodPage{
		page:          page,
		actionTimeout: a.config.actionTimeout(),
		navTimeout:    a.config.pageLoadTimeout(),
	}, nil
}

// Cookies returns every cookie of the default browser context.
func (a *Automation) Cookies() ([]Cookie, error) {
	if a.browser == nil {
		return nil, errors.New("browser not started")
	}

	raw, err := a.browser.GetCookies()
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		expires := float64(c.Expires)
		if c.Session {
			expires = -1
		}
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

func (a *Automation) SetCookies(cookies []Cookie) error {
	if a.browser == nil {
		return errors.New("browser not started")
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if !c.SessionCookie() {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return a.browser.SetCookies(params)
}

// rodPage implements Page on a go-rod tab.
type rodPage struct {
	page          *rod.Page
	actionTimeout time.Duration
	navTimeout    time.Duration
}

func (p *rodPage) Context(ctx context.Context) Page {
	return &rodPage{
		page:          p.page.Context(ctx),
		actionTimeout: p.actionTimeout,
		navTimeout:    p.navTimeout,
	}
}

// within runs fn against a copy of the page bounded by timeout (none when
// timeout is zero) and maps deadline errors to ErrWaitTimeout.
func (p *rodPage) within(timeout time.Duration, what string, fn func(pg *rod.Page) error) error {
	pg := p.page
	if timeout > 0 {
		pg = pg.Timeout(timeout)
		defer pg.CancelTimeout()
	}

	err := fn(pg)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, what)
	}
	return err
}

func (p *rodPage) find(selector string) (*rod.Element, error) {
	has, el, err := p.page.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return el, nil
}

func (p *rodPage) Navigate(url string, timeout time.Duration) error {
	return p.within(timeout, url, func(pg *rod.Page) error {
		if err := pg.Navigate(url); err != nil {
			return err
		}
		return pg.WaitLoad()
	})
}

func (p *rodPage) Reload() error {
	return p.page.Reload()
}

func (p *rodPage) WaitVisible(selector string, timeout time.Duration) error {
	return p.within(timeout, selector, func(pg *rod.Page) error {
		el, err := pg.Element(selector)
		if err != nil {
			return err
		}
		return el.WaitVisible()
	})
}

func (p *rodPage) WaitHidden(selector string, timeout time.Duration) error {
	return p.within(timeout, selector, func(pg *rod.Page) error {
		el, err := pg.Element(selector)
		if err != nil {
			return err
		}
		return el.WaitInvisible()
	})
}

// WaitNavigation gives up waiting after the page load timeout; the next step
// fails on its own if the page really did not change.
func (p *rodPage) WaitNavigation(action func() error) error {
	pg := p.page
	if p.navTimeout > 0 {
		pg = pg.Timeout(p.navTimeout)
		defer pg.CancelTimeout()
	}

	wait := pg.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := action(); err != nil {
		return err
	}
	wait()
	return nil
}

func (p *rodPage) Click(selector string) error {
	return p.within(p.actionTimeout, selector, func(pg *rod.Page) error {
		el, err := pg.Element(selector)
		if err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (p *rodPage) Input(selector, text string) error {
	return p.within(p.actionTimeout, selector, func(pg *rod.Page) error {
		el, err := pg.Element(selector)
		if err != nil {
			return err
		}
		if err := el.SelectAllText(); err != nil {
			return err
		}
		return el.Input(text)
	})
}

func (p *rodPage) Submit(selector string) error {
	return p.within(p.actionTimeout, selector, func(pg *rod.Page) error {
		el, err := pg.Element(selector)
		if err != nil {
			return err
		}
		return el.Type(input.Enter)
	})
}

func (p *rodPage) Scroll(y int) error {
	_, err := p.page.Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

func (p *rodPage) Attribute(selector, name string) (string, error) {
	el, err := p.find(selector)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (p *rodPage) Value(selector string) (string, error) {
	el, err := p.find(selector)
	if err != nil {
		return "", err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func (p *rodPage) Count(selector string) (int, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (p *rodPage) Texts(selector string) ([]string, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			return nil, err
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

func (p *rodPage) Options(q OptionQuery) ([]Option, error) {
	items, err := p.page.Elements(q.Item)
	if err != nil {
		return nil, err
	}

	options := make([]Option, 0, len(items))
	for i, item := range items {
		opt := Option{Index: i, Fields: make([]string, len(q.Fields))}
		for j, field := range q.Fields {
			matches, err := item.Elements(field)
			if err != nil || matches.Empty() {
				continue
			}
			text, err := matches.First().Text()
			if err != nil {
				continue
			}
			opt.Fields[j] = strings.TrimSpace(text)
		}
		options = append(options, opt)
	}
	return options, nil
}

// ClickOption clicks through the DOM so radio containers that are not
// pointer targets themselves still register.
func (p *rodPage) ClickOption(q OptionQuery, index int) error {
	items, err := p.page.Elements(q.Item)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(items) {
		return fmt.Errorf("%w: %s #%d", ErrElementNotFound, q.Item, index)
	}

	target := items[index]
	if q.Target != "" {
		matches, err := target.Elements(q.Target)
		if err != nil {
			return err
		}
		if matches.Empty() {
			return fmt.Errorf("%w: %s in %s #%d", ErrElementNotFound, q.Target, q.Item, index)
		}
		target = matches.First()
	}

	_, err = target.Eval(`() => this.click()`)
	return err
}
