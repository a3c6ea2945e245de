package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"impulse-trading-bot/config"
	"impulse-trading-bot/internal/exchange"
	"impulse-trading-bot/internal/indicator"
	"impulse-trading-bot/internal/market"
	"impulse-trading-bot/internal/setup"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// One-shot detection sweep. Runs the same evaluation the live bot runs on
// every scan tick, but against fresh market data and a throwaway engine, and
// prints what the detector sees per symbol and direction.
func main() {
	godotenv.Load()

	configPath := flag.String("config", "config.json", "path to the config file")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbol override")
	timeframeFlag := flag.String("timeframe", "", "timeframe override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	symbols := cfg.Bot.Symbols
	if *symbolsFlag != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}
	timeframe := cfg.Bot.Timeframe
	if *timeframeFlag != "" {
		timeframe = *timeframeFlag
	}
	if len(symbols) == 0 {
		fmt.Println("❌ No symbols to scan")
		os.Exit(1)
	}

	ex := exchange.NewClient(exchange.Config{
		BaseURL:  cfg.Exchange.BaseURL,
		Timeout:  time.Duration(cfg.Exchange.TimeoutSecs) * time.Second,
		KlineTTL: time.Duration(cfg.Exchange.KlineTTLSecs) * time.Second,
		PriceTTL: time.Duration(cfg.Exchange.PriceTTLSecs) * time.Second,
	}, zerolog.Nop())
	engine := setup.NewEngine(cfg.Detection, zerolog.Nop())
	trend := indicator.NewTrendAnalyzer(5)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("🔍 SETUP DETECTION SWEEP")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("   Timeframe: %s | Symbols: %d | Lookback: %d | Min impulse: %.1f%% | Dominance: %.2f\n",
		timeframe, len(symbols), cfg.Detection.Lookback,
		cfg.Detection.MinImpulsePercent, cfg.Detection.MinDominance)

	var actionable []setup.Setup

	for _, symbol := range symbols {
		candles, err := ex.GetCandles(ctx, symbol, timeframe, cfg.Bot.CandleLimit)
		if err != nil {
			fmt.Printf("\n❌ %s: candle fetch failed: %v\n", symbol, err)
			continue
		}
		if len(candles) == 0 {
			fmt.Printf("\n⚠️  %s: no candles returned\n", symbol)
			continue
		}
		price := candles[len(candles)-1].Close

		fmt.Println("\n" + strings.Repeat("─", 80))
		fmt.Printf("📍 %s  (%d candles, last close %.4f)\n", symbol, len(candles), price)

		imp := indicator.DetectImpulse(candles,
			cfg.Detection.MinImpulsePercent, cfg.Detection.MinDominance, cfg.Detection.Lookback)
		if imp == nil {
			fmt.Printf("   Impulse: none (need ≥%.1f%% at dominance ≥%.2f in last %d candles)\n",
				cfg.Detection.MinImpulsePercent, cfg.Detection.MinDominance, cfg.Detection.Lookback)
		} else {
			arrow := "⬆️"
			if imp.Direction == market.Short {
				arrow = "⬇️"
			}
			fmt.Printf("   Impulse: %s %s %.2f%% (dominance %.2f) %.4f → %.4f\n",
				arrow, imp.Direction, imp.PercentMove, imp.Dominance, imp.StartPrice, imp.EndPrice)
		}

		osc := indicator.RSISeries(candles, cfg.Detection.OscPeriod)
		if len(osc) > 0 {
			fmt.Printf("   RSI(%d): %.1f | ATR: %.2f%%\n",
				cfg.Detection.OscPeriod, osc[len(osc)-1], indicator.ATRPercent(candles, 14))
		}

		var htf *market.TrendSignal
		if cfg.Bot.HTFTimeframe != "" {
			htfCandles, err := ex.GetCandles(ctx, symbol, cfg.Bot.HTFTimeframe, cfg.Bot.CandleLimit)
			if err == nil {
				htf = trend.Analyze(htfCandles)
			}
			if htf != nil {
				fmt.Printf("   HTF %s: %s (confidence %.2f)\n", cfg.Bot.HTFTimeframe, htf.Trend, htf.Confidence)
			}
		}

		for _, dir := range []market.Direction{market.Long, market.Short} {
			key := setup.SetupKey{Symbol: symbol, Timeframe: timeframe, Direction: dir}
			engine.Evaluate(key, candles, htf)

			label := strings.ToUpper(string(dir))
			s, ok := engine.Get(key)
			if !ok {
				fmt.Printf("   %-5s → no setup\n", label)
				continue
			}

			line := fmt.Sprintf("   %-5s → %s (%s) osc %.1f stop %.4f",
				label, strings.ToUpper(string(s.State)), s.Classification, s.OscValue, s.StructureStop)
			if s.Variant != "" {
				line += " variant " + s.Variant
			}
			if s.Fib != nil {
				line += fmt.Sprintf(" fib %.3f", s.Fib.Ratio)
			}
			if s.Divergence != nil {
				line += " divergence"
			}
			if s.Tier > 0 {
				line += fmt.Sprintf(" tier %d", s.Tier)
			}
			fmt.Println(line)

			if s.Actionable() {
				actionable = append(actionable, s)
			}
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🎯 ACTIONABLE SETUPS")
	fmt.Println(strings.Repeat("=", 80))

	if len(actionable) == 0 {
		fmt.Println("   None right now")
	} else {
		fmt.Println("┌──────────────────────────┬──────────────┬─────────────────────┬───────┬────────────┐")
		fmt.Println("│ Setup                    │ State        │ Classification      │ Osc   │ Stop       │")
		fmt.Println("├──────────────────────────┼──────────────┼─────────────────────┼───────┼────────────┤")
		for _, s := range actionable {
			fmt.Printf("│ %-24s │ %-12s │ %-19s │ %5.1f │ %10.4f │\n",
				truncate(s.Key().String(), 24), s.State, s.Classification, s.OscValue, s.StructureStop)
		}
		fmt.Println("└──────────────────────────┴──────────────┴─────────────────────┴───────┴────────────┘")
	}

	hits, misses, rate := ex.CacheStats()
	fmt.Printf("\n📦 Exchange cache: %d hits / %d misses (%.0f%% hit rate)\n", hits, misses, rate*100)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
