package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to a .env file with credentials and payment details")
	url := flag.String("url", "", "Product page to buy from (overrides config and URL_PRODUCT)")
	sessionPath := flag.String("session", "", "Where to keep the saved login session (overrides config)")
	headless := flag.Bool("headless", false, "Run the browser without a window")
	debug := flag.Bool("debug", false, "Enable detailed debug logging")
	flag.Parse()

	if err := InitLocale(); err != nil {
		log.Printf("Warning: Locale initialization failed, using default English: %v", err)
	}

	if err := os.MkdirAll(getUserDataDir(), 0755); err != nil {
		log.Printf(T("warning_user_data_dir")+"\n", err)
	}

	if err := LoadEnvFile(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ApplyEnv(os.Getenv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	if *url != "" {
		config.ProductURL = *url
	}
	if *sessionPath != "" {
		config.SessionPath = *sessionPath
	}
	if *headless {
		config.Headless = true
	}
	if *debug {
		config.DebugMode = true
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	runID := uuid.NewString()
	logger, logCloser, err := NewLogger(config.Log, config.DebugMode, runID)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	defer logCloser.Close()

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                 dropcart purchase assistant               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf(T("banner_product")+"\n", config.ProductURL)
	fmt.Printf(T("banner_session")+"\n", config.SessionPath)
	fmt.Printf(T("banner_payment")+"\n", config.PaymentMethodName)
	if config.FinalizePayment {
		fmt.Println(T("banner_finalize_on"))
	} else {
		fmt.Println(T("banner_finalize_off"))
	}
	if config.DebugMode {
		fmt.Println(T("banner_debug"))
	}
	fmt.Println()

	if _, err := config.PaymentMethod(); err != nil {
		// Checked again at the payment step.
		logger.Warn().Err(err).Msg("payment configuration incomplete")
		fmt.Printf(T("warning_payment_config")+"\n", err)
	}

	logger.Info().
		Str("product_url", config.ProductURL).
		Str("payment_method", config.PaymentMethodName).
		Bool("finalize", config.FinalizePayment).
		Msg("run started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	automation := NewAutomation(config, logger)
	defer automation.Close()

	if err := automation.setupBrowser(); err != nil {
		logger.Error().Err(err).Msg("browser launch failed")
		log.Fatalf("Failed to setup browser: %v", err)
	}

	page, err := automation.openPage()
	if err != nil {
		logger.Error().Err(err).Msg("page creation failed")
		log.Fatalf("Failed to open page: %v", err)
	}

	sessions := NewSessionStore(config.SessionPath, logger)
	orchestrator := NewOrchestrator(config, page, automation, sessions, NewConsoleSink(logger), logger, runID)

	report, runErr := orchestrator.Run(ctx)
	printReport(report)

	if runErr != nil {
		logger.Error().Err(runErr).Str("state", report.State.String()).Msg("run failed")
		fmt.Printf(T("run_failed")+"\n", runErr)
	} else {
		logger.Info().
			Str("outcome", report.Outcome.String()).
			Int("interventions", len(report.Interventions)).
			Dur("elapsed", report.Elapsed).
			Msg("run finished")
	}

	if config.KeepBrowserOpen && ctx.Err() == nil {
		fmt.Println(T("keeping_browser_open"))
		<-ctx.Done()
	}

	if runErr != nil {
		logCloser.Close()
		automation.Close()
		os.Exit(1)
	}
}

func printReport(r *Report) {
	fmt.Println()
	fmt.Println(T("report_header"))
	fmt.Printf(T("report_state")+"\n", r.State)
	fmt.Printf(T("report_attempts")+"\n", r.Attempts)
	fmt.Printf(T("report_cart")+"\n", r.Cart.LineCount, r.Cart.Quantity)
	fmt.Printf(T("report_outcome")+"\n", r.Outcome)
	for _, i := range r.Interventions {
		fmt.Printf("   • %s\n", i)
	}
	fmt.Printf(T("report_elapsed")+"\n", r.Elapsed.Round(time.Millisecond))
	fmt.Println()
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./dropcart-data"
	}
	return filepath.Join(home, ".dropcart")
}
