package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingConfig marks a configuration value that was required but empty.
var ErrMissingConfig = errors.New("missing configuration value")

type Config struct {
	StartURL   string `yaml:"start_url"`
	ProductURL string `yaml:"product_url"`

	SessionPath        string `yaml:"session_path"`
	BrowserProfilePath string `yaml:"browser_profile_path"`

	PageLoadTimeout     int `yaml:"page_load_timeout"`
	LoginTimeout        int `yaml:"login_timeout"`
	CookieNoticeTimeout int `yaml:"cookie_notice_timeout"`
	ActionTimeout       int `yaml:"action_timeout"`
	ManualWaitTimeout   int `yaml:"manual_wait_timeout"`
	RefreshIntervalMs   int `yaml:"refresh_interval_ms"`

	ScrollMin int `yaml:"scroll_min"`
	ScrollMax int `yaml:"scroll_max"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	Headless        bool `yaml:"headless"`
	KeepBrowserOpen bool `yaml:"keep_browser_open"`
	DebugMode       bool `yaml:"debug_mode"`

	PaymentMethodName string `yaml:"payment_method"`
	FinalizePayment   bool   `yaml:"finalize_payment"`

	Delivery DeliveryConfig `yaml:"delivery"`
	Log      LogConfig      `yaml:"log"`

	Selectors SelectorConfig `yaml:"selectors"`

	// Secrets only ever come from the environment.
	Username   string `yaml:"-"`
	Password   string `yaml:"-"`
	SwishPhone string `yaml:"-"`
	CardNumber string `yaml:"-"`
	CardExpiry string `yaml:"-"`
	CardCVC    string `yaml:"-"`
	CardHolder string `yaml:"-"`
}

type DeliveryConfig struct {
	Carrier string `yaml:"carrier"`
	Service string `yaml:"service"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// SelectorConfig is the storefront's markup contract. When the shop changes
// its HTML this block is the only thing that needs editing.
type SelectorConfig struct {
	CookieDecline string `yaml:"cookie_decline"`

	LoginTrigger  string `yaml:"login_trigger"`
	LoginModal    string `yaml:"login_modal"`
	LoginForm     string `yaml:"login_form"`
	LoginUsername string `yaml:"login_username"`
	LoginPassword string `yaml:"login_password"`

	BuyButton string `yaml:"buy_button"`

	BasketContainer  string `yaml:"basket_container"`
	BasketLines      string `yaml:"basket_lines"`
	BasketQuantity   string `yaml:"basket_quantity"`
	ToCheckoutButton string `yaml:"to_checkout_button"`

	CheckoutBody      string `yaml:"checkout_body"`
	CompletedSteps    string `yaml:"completed_steps"`
	AcceptTermsButton string `yaml:"accept_terms_button"`

	DeliverySection      string `yaml:"delivery_section"`
	DeliveryOption       string `yaml:"delivery_option"`
	DeliveryCarrierName  string `yaml:"delivery_carrier_name"`
	DeliveryServiceLabel string `yaml:"delivery_service_label"`
	DeliveryRadio        string `yaml:"delivery_radio"`
	DeliveryNextButton   string `yaml:"delivery_next_button"`

	PaymentSection     string `yaml:"payment_section"`
	PaymentOption      string `yaml:"payment_option"`
	PaymentOptionLabel string `yaml:"payment_option_label"`

	SwishPhone   string `yaml:"swish_phone"`
	SwishConfirm string `yaml:"swish_confirm"`

	CardNumber      string `yaml:"card_number"`
	CardExpiry      string `yaml:"card_expiry"`
	CardCVC         string `yaml:"card_cvc"`
	CardHolder      string `yaml:"card_holder"`
	CardInvalidAttr string `yaml:"card_invalid_attr"`
	CardPayButton   string `yaml:"card_pay_button"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		StartURL:            "",
		ProductURL:          "",
		SessionPath:         filepath.Join(userDataDir, "session.json"),
		BrowserProfilePath:  "",
		PageLoadTimeout:     30,
		LoginTimeout:        30,
		CookieNoticeTimeout: 15,
		ActionTimeout:       10,
		ManualWaitTimeout:   0,
		RefreshIntervalMs:   5000,
		ScrollMin:           20,
		ScrollMax:           250,
		ViewportWidth:       1280,
		ViewportHeight:      720,
		Headless:            false,
		KeepBrowserOpen:     true,
		DebugMode:           false,
		PaymentMethodName:   "swish",
		FinalizePayment:     false,
		Delivery: DeliveryConfig{
			Carrier: "postnord",
			Service: "hempaket",
		},
		Log: LogConfig{
			Level:      "info",
			File:       filepath.Join(userDataDir, "logs", "dropcart.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Selectors: SelectorConfig{
			CookieDecline: "#declineButton",

			LoginTrigger:  "#openLogin",
			LoginModal:    "#loginModal",
			LoginForm:     "#loginForm",
			LoginUsername: "#UserName",
			LoginPassword: "#Password",

			BuyButton: `.site-product-stock-price-buy [data-form-action="addToBasket"]`,

			BasketContainer:  ".site-basket-divs",
			BasketLines:      "#basketLines li",
			BasketQuantity:   "input.quantity",
			ToCheckoutButton: `.site-basket-divs .site-btn-green[href="/Basket/CheckOut"]`,

			CheckoutBody:      "body.siteBodyBasketCheckOut",
			CompletedSteps:    ".text-muted .checkOutStep",
			AcceptTermsButton: ".acceptTermsBtnContainer #traidConditionsAnswer",

			DeliverySection:      ".site-checkOut-deliveryoptions",
			DeliveryOption:       ".optionRow",
			DeliveryCarrierName:  ".site-carrierName > b",
			DeliveryServiceLabel: ".site-carrierName .site-deliveryTotalPriceWithVat + div",
			DeliveryRadio:        ".site-radioMethod .deliveryOptionRadioContainer",
			DeliveryNextButton:   "#DeliveryOptionsForm .nextBtnContainer .site-btn-green",

			PaymentSection:     ".site-checkOut-paymentoptions",
			PaymentOption:      `.site-paymentTypes li button[name="paymentOption"]`,
			PaymentOptionLabel: ".col-md-6.col-sm-5.col-xs-9 b",

			SwishPhone:   "#swishphonenumber",
			SwishConfirm: "#swishContinueBtn",

			CardNumber:      "#cardnumberInptTxt",
			CardExpiry:      "#expirationInptTxt",
			CardCVC:         "#cvcInptTxt",
			CardHolder:      "#cardholderNameInptTxt",
			CardInvalidAttr: "aria-invalid",
			CardPayButton:   "#payBtn",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadEnvFile reads KEY=VALUE pairs from a .env file into the process
// environment. Variables that are already set win. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables on top of the file configuration.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&c.StartURL, "URL_START")
	setString(&c.ProductURL, "URL_PRODUCT")
	setString(&c.Username, "USERNAME")
	setString(&c.Password, "PASSWORD")
	setString(&c.PaymentMethodName, "DESIRED_PAYMENT_METHOD")
	setString(&c.SwishPhone, "SWISH_PHONE_NUMBER")
	setString(&c.CardNumber, "CARD_NUMBER")
	setString(&c.CardExpiry, "CARD_EXPIRY")
	setString(&c.CardCVC, "CARD_CVC")
	setString(&c.CardHolder, "CARD_NAME")

	if v := strings.TrimSpace(getenv("REFRESH_INTERVAL")); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("REFRESH_INTERVAL must be a positive number of milliseconds, got %q", v)
		}
		c.RefreshIntervalMs = ms
	}

	if v := strings.TrimSpace(getenv("FINALIZE_PAYMENT")); v != "" {
		finalize, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FINALIZE_PAYMENT must be true or false, got %q", v)
		}
		c.FinalizePayment = finalize
	}

	return nil
}

// Validate checks what is needed before the browser is even launched.
// Credentials and payment details are checked where they are used.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("%w: start url (URL_START)", ErrMissingConfig)
	}
	if c.ProductURL == "" {
		return fmt.Errorf("%w: product url (URL_PRODUCT)", ErrMissingConfig)
	}
	if c.RefreshIntervalMs <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %dms", c.RefreshIntervalMs)
	}
	return nil
}

// Credentials returns the storefront login, failing when either half is empty.
func (c *Config) Credentials() (string, string, error) {
	if c.Username == "" {
		return "", "", fmt.Errorf("%w: USERNAME", ErrMissingConfig)
	}
	if c.Password == "" {
		return "", "", fmt.Errorf("%w: PASSWORD", ErrMissingConfig)
	}
	return c.Username, c.Password, nil
}

// PaymentMethod builds the configured payment variant.
func (c *Config) PaymentMethod() (PaymentMethod, error) {
	name := strings.ToLower(strings.TrimSpace(c.PaymentMethodName))

	switch name {
	case MethodSwish:
		if c.SwishPhone == "" {
			return nil, fmt.Errorf("%w: SWISH_PHONE_NUMBER", ErrMissingConfig)
		}
		return SwishMethod{Phone: c.SwishPhone}, nil
	case MethodVisa, MethodMastercard:
		missing := []string{}
		if c.CardNumber == "" {
			missing = append(missing, "CARD_NUMBER")
		}
		if c.CardExpiry == "" {
			missing = append(missing, "CARD_EXPIRY")
		}
		if c.CardCVC == "" {
			missing = append(missing, "CARD_CVC")
		}
		if c.CardHolder == "" {
			missing = append(missing, "CARD_NAME")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
		}
		return CardMethod{
			Brand:  name,
			Number: c.CardNumber,
			Expiry: c.CardExpiry,
			CVC:    c.CardCVC,
			Holder: c.CardHolder,
		}, nil
	case "":
		return nil, fmt.Errorf("%w: DESIRED_PAYMENT_METHOD", ErrMissingConfig)
	default:
		return nil, fmt.Errorf("unsupported payment method %q (want swish, visa or mastercard)", c.PaymentMethodName)
	}
}

func (c *Config) pageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeout) * time.Second
}

func (c *Config) loginTimeout() time.Duration {
	return time.Duration(c.LoginTimeout) * time.Second
}

func (c *Config) cookieNoticeTimeout() time.Duration {
	return time.Duration(c.CookieNoticeTimeout) * time.Second
}

func (c *Config) actionTimeout() time.Duration {
	return time.Duration(c.ActionTimeout) * time.Second
}

func (c *Config) manualWaitTimeout() time.Duration {
	return time.Duration(c.ManualWaitTimeout) * time.Second
}

func (c *Config) refreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}
