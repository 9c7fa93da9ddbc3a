// Package setup holds the terminal wizard that generates a starter
// config file.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/priceguard/config"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

type yamlAsset struct {
	Symbol      string `yaml:"symbol"`
	Binance     string `yaml:"binance,omitempty"`
	Bybit       string `yaml:"bybit,omitempty"`
	Hyperliquid string `yaml:"hyperliquid,omitempty"`
	Stablecoin  bool   `yaml:"stablecoin,omitempty"`
}

type yamlSource struct {
	ID      string `yaml:"id"`
	Enabled bool   `yaml:"enabled"`
}

type yamlConfig struct {
	ListenAddr         string       `yaml:"listen_addr"`
	SimulationMode     bool         `yaml:"simulation_mode"`
	Assets             []yamlAsset  `yaml:"assets"`
	Sources            []yamlSource `yaml:"sources"`
	StableAsset        string       `yaml:"stable_asset"`
	VarianceThreshold  string       `yaml:"variance_threshold"`
	FreshnessThreshold string       `yaml:"freshness_threshold"`
}

// RunTUI launches the terminal configuration wizard and writes
// config.gen.yaml on confirmation.
func RunTUI() error {
	var (
		assetsStr    string
		stableSymbol string
		sources      []string
		simulate     bool
		thresholdStr string
		freshnessStr string
		listenAddr   string
		confirm      bool
	)

	// defaults
	assetsStr = "GALA,TOWN"
	stableSymbol = "GUSDC"
	sources = []string{"binance", "bybit", "hyperliquid"}
	simulate = true
	thresholdStr = "10"
	freshnessStr = "30s"
	listenAddr = config.DefaultListenAddr

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("PRICEGUARD CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Multi-source prices with guardrails.\n"))

	fmt.Println(stepStyle.Render("STEP 1: ASSETS"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assets to track").
				Description("Comma-separated symbols (e.g. GALA,TOWN)").
				Value(&assetsStr).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("at least one asset is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("USD-pegged quote asset").
				Description("Pinned to 1.0, used as the swap leg (e.g. GUSDC)").
				Value(&stableSymbol).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("stable asset symbol is required")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PRICEGUARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: PRICE SOURCES"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Enabled price sources").
				Options(
					huh.NewOption("Binance", "binance").Selected(true),
					huh.NewOption("Bybit", "bybit").Selected(true),
					huh.NewOption("Hyperliquid", "hyperliquid").Selected(true),
				).
				Value(&sources).
				Validate(func(picked []string) error {
					if len(picked) == 0 {
						return fmt.Errorf("enable at least one source")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PRICEGUARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: EXECUTION MODE"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Simulation mode?").
				Description("Simulation records swaps without sending them. Live mode sends real orders.").
				Affirmative("Simulate").
				Negative("Live trading").
				Value(&simulate),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PRICEGUARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: GUARDRAILS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Variance threshold %").
				Description("Sources disagreeing by more than this fall back to the priority order").
				Value(&thresholdStr).
				Validate(validateThreshold),
			huh.NewInput().
				Title("Freshness threshold").
				Description("Duration string (e.g. 30s); older prices block trading").
				Value(&freshnessStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewInput().
				Title("HTTP listen address").
				Value(&listenAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PRICEGUARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	mode := "simulation"
	if !simulate {
		mode = "LIVE TRADING"
	}
	summary := fmt.Sprintf(
		"Assets: %s\nStable: %s\nSources: %s\nMode: %s\nVariance: %s%%\nFreshness: %s\nListen: %s\n",
		assetsStr, stableSymbol, strings.Join(sources, ", "), mode, thresholdStr, freshnessStr, listenAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	stableSymbol = strings.ToUpper(strings.TrimSpace(stableSymbol))

	cfg := yamlConfig{
		ListenAddr:         listenAddr,
		SimulationMode:     simulate,
		StableAsset:        stableSymbol,
		VarianceThreshold:  thresholdStr,
		FreshnessThreshold: freshnessStr,
	}

	enabled := make(map[string]bool, len(sources))
	for _, id := range sources {
		enabled[id] = true
	}
	for _, id := range []string{"binance", "bybit", "hyperliquid"} {
		cfg.Sources = append(cfg.Sources, yamlSource{ID: id, Enabled: enabled[id]})
	}

	for _, symbol := range strings.Split(assetsStr, ",") {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		cfg.Assets = append(cfg.Assets, yamlAsset{
			Symbol:      symbol,
			Binance:     symbol + "USDT",
			Bybit:       symbol + "USDT",
			Hyperliquid: symbol,
		})
	}
	cfg.Assets = append(cfg.Assets, yamlAsset{Symbol: stableSymbol, Stablecoin: true})

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateThreshold(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("must be between 0 and 100")
	}
	return nil
}
