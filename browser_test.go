package main

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewAutomation(t *testing.T) {
	config := DefaultConfig()
	automation := NewAutomation(config, zerolog.Nop())

	if automation == nil {
		t.Fatal("NewAutomation returned nil")
	}

	if automation.config != config {
		t.Error("Automation config does not match provided config")
	}

	if automation.stopChan == nil {
		t.Error("Stop channel not initialized")
	}
}

func TestIsBrowserAlive(t *testing.T) {
	automation := NewAutomation(DefaultConfig(), zerolog.Nop())

	if automation.isBrowserAlive() {
		t.Error("isBrowserAlive() should return false when browser is nil")
	}
}

func TestCookieJarWithoutBrowser(t *testing.T) {
	automation := NewAutomation(DefaultConfig(), zerolog.Nop())

	if _, err := automation.Cookies(); err == nil {
		t.Error("Cookies() should fail before the browser is started")
	}

	if err := automation.SetCookies([]Cookie{{Name: "auth", Expires: -1}}); err == nil {
		t.Error("SetCookies() should fail before the browser is started")
	}
}

func TestCloseWithoutBrowser(t *testing.T) {
	automation := NewAutomation(DefaultConfig(), zerolog.Nop())

	// Must not panic when nothing was launched.
	automation.Close()
	automation.Close()
}

func TestOpenPageWithoutBrowser(t *testing.T) {
	automation := NewAutomation(DefaultConfig(), zerolog.Nop())

	if _, err := automation.openPage(); err == nil {
		t.Error("openPage() should fail before the browser is started")
	}
}
