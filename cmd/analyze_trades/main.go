package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"impulse-trading-bot/config"
	"impulse-trading-bot/internal/market"
	"impulse-trading-bot/internal/position"
	"impulse-trading-bot/internal/store"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type SymbolStats struct {
	Symbol        string
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      float64
	TotalWins     float64
	TotalLosses   float64
	WinRate       float64
	AvgPnL        float64
	Fees          float64
}

type ReasonStats struct {
	Reason    position.ExitReason
	Trades    int
	Winners   int
	TotalPnL  float64
	TotalHold time.Duration
}

var reasonLabels = map[position.ExitReason]string{
	position.ExitStopLoss:   "Stop loss",
	position.ExitBreakeven:  "Breakeven stop",
	position.ExitTrailing:   "Trailing stop",
	position.ExitTakeProfit: "Take profit",
	position.ExitManual:     "Manual close",
	position.ExitTimeStop:   "Time stop",
}

var reasonOrder = []position.ExitReason{
	position.ExitStopLoss,
	position.ExitBreakeven,
	position.ExitTrailing,
	position.ExitTakeProfit,
	position.ExitManual,
	position.ExitTimeStop,
}

func main() {
	godotenv.Load()

	configPath := flag.String("config", "config.json", "path to the config file")
	limit := flag.Int("limit", 500, "max closed trades to analyze")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Printf("❌ Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("📊 CLOSED TRADE PERFORMANCE ANALYSIS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("   Store: %s\n", cfg.Database.Driver)

	account, err := st.LoadAccount(ctx)
	if err == nil {
		fmt.Printf("\n💰 Account Balance: $%.2f USDT\n", account.Balance)
		fmt.Printf("📈 Peak Balance: $%.2f\n", account.PeakBalance)
		fmt.Printf("📉 Max Drawdown: %.2f%%\n", account.MaxDrawdownPercent)
	} else if !errors.Is(err, store.ErrNotFound) {
		fmt.Printf("⚠️  Failed to load account: %v\n", err)
	}

	fmt.Println("\n🔄 Fetching closed trades...")

	trades, err := st.ClosedPositions(ctx, *limit)
	if err != nil {
		fmt.Printf("❌ Failed to load closed trades: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   Found %d closed trades\n", len(trades))

	if len(trades) == 0 {
		fmt.Println("\n❌ No closed trades to analyze")
		return
	}

	symbolStats := make(map[string]*SymbolStats)
	reasonStats := make(map[position.ExitReason]*ReasonStats)
	dirTrades := make(map[market.Direction]int)
	dirWins := make(map[market.Direction]int)
	dirPnL := make(map[market.Direction]float64)
	var totalFees float64
	var breakevenSaves, trailedTrades int

	for _, t := range trades {
		if _, exists := symbolStats[t.Symbol]; !exists {
			symbolStats[t.Symbol] = &SymbolStats{Symbol: t.Symbol}
		}
		stats := symbolStats[t.Symbol]

		fees := t.EntryFees + t.ExitFees
		stats.TotalTrades++
		stats.TotalPnL += t.RealizedPnL
		stats.Fees += fees
		totalFees += fees

		if t.RealizedPnL > 0 {
			stats.WinningTrades++
			stats.TotalWins += t.RealizedPnL
		} else if t.RealizedPnL < 0 {
			stats.LosingTrades++
			stats.TotalLosses += t.RealizedPnL
		}

		if _, exists := reasonStats[t.ExitReason]; !exists {
			reasonStats[t.ExitReason] = &ReasonStats{Reason: t.ExitReason}
		}
		rs := reasonStats[t.ExitReason]
		rs.Trades++
		rs.TotalPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			rs.Winners++
		}
		if !t.ExitTime.IsZero() && !t.EntryTime.IsZero() {
			rs.TotalHold += t.ExitTime.Sub(t.EntryTime)
		}

		dirTrades[t.Direction]++
		dirPnL[t.Direction] += t.RealizedPnL
		if t.RealizedPnL > 0 {
			dirWins[t.Direction]++
		}
		if t.BreakevenLocked {
			breakevenSaves++
		}
		if t.TrailingActive {
			trailedTrades++
		}
	}

	var sortedStats []*SymbolStats
	for _, s := range symbolStats {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
		s.AvgPnL = s.TotalPnL / float64(s.TotalTrades)
		sortedStats = append(sortedStats, s)
	}

	sort.Slice(sortedStats, func(i, j int) bool {
		return sortedStats[i].TotalPnL > sortedStats[j].TotalPnL
	})

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("📈 TRADE PERFORMANCE BY SYMBOL")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("┌──────────────┬────────┬─────────┬─────────┬──────────────┬──────────────┬──────────┐")
	fmt.Println("│ Symbol       │ Trades │ Winners │ Losers  │ Total PnL    │ Avg PnL      │ Win Rate │")
	fmt.Println("├──────────────┼────────┼─────────┼─────────┼──────────────┼──────────────┼──────────┤")

	var grandTotal float64
	var grandTrades, grandWins, grandLosses int

	for _, s := range sortedStats {
		emoji := "🟢"
		if s.TotalPnL < 0 {
			emoji = "🔴"
		}
		fmt.Printf("│ %s %-10s │ %6d │ %7d │ %7d │ %+12.2f │ %+12.2f │ %7.1f%% │\n",
			emoji, truncate(s.Symbol, 10),
			s.TotalTrades, s.WinningTrades, s.LosingTrades,
			s.TotalPnL, s.AvgPnL, s.WinRate)

		grandTotal += s.TotalPnL
		grandTrades += s.TotalTrades
		grandWins += s.WinningTrades
		grandLosses += s.LosingTrades
	}

	fmt.Println("├──────────────┼────────┼─────────┼─────────┼──────────────┼──────────────┼──────────┤")
	grandWinRate := 0.0
	grandAvg := 0.0
	if grandTrades > 0 {
		grandWinRate = float64(grandWins) / float64(grandTrades) * 100
		grandAvg = grandTotal / float64(grandTrades)
	}
	fmt.Printf("│ 📊 TOTAL     │ %6d │ %7d │ %7d │ %+12.2f │ %+12.2f │ %7.1f%% │\n",
		grandTrades, grandWins, grandLosses, grandTotal, grandAvg, grandWinRate)
	fmt.Println("└──────────────┴────────┴─────────┴─────────┴──────────────┴──────────────┴──────────┘")

	// Realized PnL is already net of fees, so gross is reconstructed for context.
	fmt.Printf("\n💸 Total Fees Paid: $%.2f\n", totalFees)
	fmt.Printf("📊 Gross PnL (before fees): $%.2f\n", grandTotal+totalFees)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚪 PERFORMANCE BY EXIT REASON")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("┌──────────────────┬────────┬─────────┬──────────────┬──────────┬────────────┐")
	fmt.Println("│ Exit Reason      │ Trades │ Winners │ Total PnL    │ Win Rate │ Avg Hold   │")
	fmt.Println("├──────────────────┼────────┼─────────┼──────────────┼──────────┼────────────┤")

	for _, reason := range reasonOrder {
		rs, ok := reasonStats[reason]
		if !ok {
			continue
		}
		winRate := float64(rs.Winners) / float64(rs.Trades) * 100
		avgHold := rs.TotalHold / time.Duration(rs.Trades)
		fmt.Printf("│ %-16s │ %6d │ %7d │ %+12.2f │ %7.1f%% │ %-10s │\n",
			reasonLabels[reason], rs.Trades, rs.Winners, rs.TotalPnL, winRate,
			avgHold.Round(time.Minute))
	}
	fmt.Println("└──────────────────┴────────┴─────────┴──────────────┴──────────┴────────────┘")

	fmt.Println("\n📐 DIRECTION SPLIT")
	for _, dir := range []market.Direction{market.Long, market.Short} {
		n := dirTrades[dir]
		if n == 0 {
			continue
		}
		winRate := float64(dirWins[dir]) / float64(n) * 100
		fmt.Printf("   %-5s  %3d trades | PnL: $%+.2f | Win rate: %.1f%%\n",
			strings.ToUpper(string(dir)), n, dirPnL[dir], winRate)
	}
	fmt.Printf("   Breakeven locked before exit: %d | Trailing engaged: %d\n",
		breakevenSaves, trailedTrades)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🔴 WORST PERFORMING SYMBOLS")
	fmt.Println(strings.Repeat("=", 80))

	worstCount := 0
	for i := len(sortedStats) - 1; i >= 0 && worstCount < 5; i-- {
		s := sortedStats[i]
		if s.TotalPnL < 0 {
			avgLoss := 0.0
			if s.LosingTrades > 0 {
				avgLoss = s.TotalLosses / float64(s.LosingTrades)
			}
			fmt.Printf("   🔴 %s: $%.2f total loss | %d losses | Avg loss: $%.2f | Win rate: %.1f%%\n",
				s.Symbol, s.TotalPnL, s.LosingTrades, avgLoss, s.WinRate)
			worstCount++
		}
	}
	if worstCount == 0 {
		fmt.Println("   None, every symbol is net positive")
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🟢 BEST PERFORMING SYMBOLS")
	fmt.Println(strings.Repeat("=", 80))

	bestCount := 0
	for _, s := range sortedStats {
		if s.TotalPnL > 0 && bestCount < 5 {
			avgWin := 0.0
			if s.WinningTrades > 0 {
				avgWin = s.TotalWins / float64(s.WinningTrades)
			}
			fmt.Printf("   🟢 %s: $%.2f total profit | %d wins | Avg win: $%.2f | Win rate: %.1f%%\n",
				s.Symbol, s.TotalPnL, s.WinningTrades, avgWin, s.WinRate)
			bestCount++
		}
	}
	if bestCount == 0 {
		fmt.Println("   None, no symbol is net positive yet")
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("💡 INSIGHTS & RECOMMENDATIONS")
	fmt.Println(strings.Repeat("=", 80))

	if grandWinRate < 50 {
		fmt.Printf("\n   ⚠️  Overall win rate is %.1f%% - BELOW 50%%\n", grandWinRate)
		fmt.Println("   → Consider raising the oscillator trigger threshold or min impulse size")
	} else {
		fmt.Printf("\n   ✅ Overall win rate is %.1f%% - above 50%%\n", grandWinRate)
	}

	if sl, ok := reasonStats[position.ExitStopLoss]; ok && grandTrades > 0 {
		slShare := float64(sl.Trades) / float64(grandTrades) * 100
		if slShare > 50 {
			fmt.Printf("\n   ⚠️  %.1f%% of exits are full stop-outs\n", slShare)
			fmt.Println("   → Breakeven trigger may be too far from entry for this volatility")
		}
	}

	fmt.Println("\n   🚫 REVIEW CANDIDATES (negative PnL + low win rate):")
	reviewCount := 0
	for i := len(sortedStats) - 1; i >= 0; i-- {
		s := sortedStats[i]
		if s.TotalPnL < -20 && s.WinRate < 45 && s.TotalTrades >= 3 {
			fmt.Printf("      - %s (PnL: $%.2f, Win rate: %.1f%%, Trades: %d)\n",
				s.Symbol, s.TotalPnL, s.WinRate, s.TotalTrades)
			reviewCount++
		}
	}
	if reviewCount == 0 {
		fmt.Println("      None identified")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.Driver == "postgres" {
		return store.NewPostgresStore(ctx, store.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		}, zerolog.Nop())
	}
	return store.NewSQLiteStore(ctx, cfg.Database.SQLitePath, zerolog.Nop())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
