// Agent Tycoon simulator CLI: run episodes, compare policies against the
// buy-and-hold baseline, and browse the results leaderboard.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agenttycoon/sim-engine/internal/config"
	"github.com/agenttycoon/sim-engine/internal/leaderboard"
	"github.com/agenttycoon/sim-engine/internal/model"
	"github.com/agenttycoon/sim-engine/internal/policy"
	"github.com/agenttycoon/sim-engine/internal/sim"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Market catalogue, loaded once before any command runs.
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sim",
	Short: "Discrete-time market simulator for training portfolio agents",
	Long: `Agent Tycoon simulator.

Runs episodes over a market of equities, bonds, and venture projects on
a unified ledger, scoring each tick with a risk- and cost-adjusted
reward. Episodes can carry a buy-and-hold baseline twin for measuring
how well an agent adapts to market shocks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel(level),
		})))

		path, _ := cmd.Flags().GetString("config")
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "market catalogue YAML (default: built-in)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation episode",
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, _ := cmd.Flags().GetInt64("seed")
		ticks, _ := cmd.Flags().GetInt("ticks")
		cashRaw, _ := cmd.Flags().GetString("cash")
		policyName, _ := cmd.Flags().GetString("policy")
		compare, _ := cmd.Flags().GetBool("compare")
		csvPath, _ := cmd.Flags().GetString("csv")

		cash, err := decimal.NewFromString(cashRaw)
		if err != nil {
			return fmt.Errorf("invalid --cash %q: %w", cashRaw, err)
		}

		s, err := sim.New(sim.Options{
			Config:      cfg,
			Seed:        seed,
			InitialCash: cash,
			TickBudget:  ticks,
			Compare:     compare,
		})
		if err != nil {
			return err
		}
		p, err := policy.New(policyName, s.Tickers(), s.Rand())
		if err != nil {
			return err
		}

		summary := s.Run(p, ticks)

		fmt.Printf("episode complete (policy %s, seed %d)\n", p.Name(), s.Seed())
		fmt.Printf("  %-13s %d\n", "ticks:", summary.Ticks)
		fmt.Printf("  %-13s %s\n", "total reward:", summary.TotalReward)
		fmt.Printf("  %-13s %s\n", "mean reward:", summary.MeanReward)
		fmt.Printf("  %-13s %s\n", "std reward:", summary.StdReward)
		fmt.Printf("  %-13s %s\n", "final NAV:", summary.FinalNAV)
		fmt.Printf("  %-13s %s\n", "final cash:", summary.FinalCash)
		if summary.Failures > 0 {
			fmt.Printf("  %-13s %d\n", "failures:", summary.Failures)
		}

		if compare {
			report, err := s.Engine().AdaptabilityReport()
			if err != nil {
				return err
			}
			printReport(report)
		}

		if csvPath != "" {
			entry := leaderboard.Entry{
				Timestamp:  time.Now().UTC(),
				AgentName:  p.Name(),
				MeanReward: summary.MeanReward,
				StdReward:  summary.StdReward,
				Notes:      fmt.Sprintf("seed=%d ticks=%d", s.Seed(), summary.Ticks),
			}
			if err := leaderboard.Append(csvPath, entry); err != nil {
				return err
			}
			fmt.Printf("result appended to %s\n", csvPath)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Int64("seed", 0, "rng seed (0 = time-based)")
	runCmd.Flags().Int("ticks", 0, "tick budget (0 = engine default)")
	runCmd.Flags().String("cash", "100000", "initial cash")
	runCmd.Flags().String("policy", "noop", "policy: noop, random, or hodl")
	runCmd.Flags().Bool("compare", false, "run the buy-and-hold baseline alongside")
	runCmd.Flags().String("csv", "", "append the result to this leaderboard CSV")
}

// --- Compare Command ---

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Evaluate a policy against the baseline across seeds",
	Long: `Runs N fully independent episodes concurrently, one seed each, every
episode carrying its own buy-and-hold baseline, then aggregates rewards
and adaptability scores.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		episodes, _ := cmd.Flags().GetInt("episodes")
		baseSeed, _ := cmd.Flags().GetInt64("seed")
		ticks, _ := cmd.Flags().GetInt("ticks")
		cashRaw, _ := cmd.Flags().GetString("cash")
		policyName, _ := cmd.Flags().GetString("policy")
		csvPath, _ := cmd.Flags().GetString("csv")

		if episodes < 1 {
			return fmt.Errorf("--episodes must be at least 1")
		}
		cash, err := decimal.NewFromString(cashRaw)
		if err != nil {
			return fmt.Errorf("invalid --cash %q: %w", cashRaw, err)
		}

		summaries := make([]sim.RunSummary, episodes)
		reports := make([]model.AdaptabilityReport, episodes)

		g, _ := errgroup.WithContext(cmd.Context())
		for i := 0; i < episodes; i++ {
			i := i
			g.Go(func() error {
				s, err := sim.New(sim.Options{
					Config:      cfg,
					Seed:        baseSeed + int64(i),
					InitialCash: cash,
					TickBudget:  ticks,
					Compare:     true,
				})
				if err != nil {
					return err
				}
				p, err := policy.New(policyName, s.Tickers(), s.Rand())
				if err != nil {
					return err
				}
				summaries[i] = s.Run(p, ticks)
				reports[i], err = s.Engine().AdaptabilityReport()
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Printf("policy %s vs buy-and-hold baseline: %d episodes\n\n", policyName, episodes)
		fmt.Printf("  %-6s %14s %14s %14s %10s\n", "seed", "mean reward", "final NAV", "baseline NAV", "score")
		wins := 0
		means := make([]decimal.Decimal, episodes)
		var scoreSum float64
		for i, s := range summaries {
			fmt.Printf("  %-6d %14s %14s %14s %10.4f\n",
				baseSeed+int64(i), s.MeanReward, s.FinalNAV, reports[i].FinalBaselineNAV, reports[i].Score)
			means[i] = s.MeanReward
			scoreSum += reports[i].Score
			if reports[i].TotalOutperformance.IsPositive() {
				wins++
			}
		}

		grandMean := meanOf(means)
		rewardStd := stdOf(means)

		fmt.Println("\nsummary")
		fmt.Printf("  %-19s %s\n", "mean reward:", grandMean)
		fmt.Printf("  %-19s %s\n", "reward std:", rewardStd)
		fmt.Printf("  %-19s %.4f\n", "mean adaptability:", scoreSum/float64(episodes))
		fmt.Printf("  %-19s %d/%d\n", "beat baseline:", wins, episodes)

		if csvPath != "" {
			entry := leaderboard.Entry{
				Timestamp:  time.Now().UTC(),
				AgentName:  policyName,
				MeanReward: grandMean,
				StdReward:  rewardStd,
				Notes:      fmt.Sprintf("episodes=%d ticks=%d base_seed=%d", episodes, ticks, baseSeed),
			}
			if err := leaderboard.Append(csvPath, entry); err != nil {
				return err
			}
			fmt.Printf("\nresult appended to %s\n", csvPath)
		}
		return nil
	},
}

func init() {
	compareCmd.Flags().Int("episodes", 5, "number of seeds to run")
	compareCmd.Flags().Int64("seed", 1, "base seed; episode i runs with seed+i")
	compareCmd.Flags().Int("ticks", 0, "tick budget per episode (0 = engine default)")
	compareCmd.Flags().String("cash", "100000", "initial cash")
	compareCmd.Flags().String("policy", "random", "policy: noop, random, or hodl")
	compareCmd.Flags().String("csv", "", "append the aggregate to this leaderboard CSV")
}

// --- Leaderboard Command ---

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show recorded results, best mean reward first",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("csv")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := leaderboard.Read(path)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("no results recorded in %s\n", path)
			return nil
		}
		leaderboard.SortByMeanReward(entries)
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		fmt.Printf("  %-4s %-10s %14s %14s  %-20s %s\n",
			"#", "agent", "mean reward", "std reward", "recorded", "notes")
		for i, e := range entries {
			fmt.Printf("  %-4d %-10s %14s %14s  %-20s %s\n",
				i+1, e.AgentName, e.MeanReward, e.StdReward,
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Notes)
		}
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().String("csv", "leaderboard.csv", "leaderboard CSV path")
	leaderboardCmd.Flags().Int("limit", 20, "max rows to show")
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sim %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func printReport(r model.AdaptabilityReport) {
	fmt.Println("baseline comparison")
	fmt.Printf("  %-22s %.4f\n", "adaptability score:", r.Score)
	fmt.Printf("  %-22s %d\n", "shocks measured:", r.ShockCount)
	fmt.Printf("  %-22s %d/%d\n", "windows outperformed:", r.OutperformedCount, r.ShockCount)
	fmt.Printf("  %-22s %s\n", "agent NAV:", r.FinalAgentNAV)
	fmt.Printf("  %-22s %s\n", "baseline NAV:", r.FinalBaselineNAV)
	fmt.Printf("  %-22s %s (%.2f%%)\n", "outperformance:", r.TotalOutperformance, r.TotalOutperformancePct)
}

func meanOf(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range vals {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(vals)))).Round(6)
}

// stdOf is the sample standard deviation across episode means. A
// statistic, not money, so float64 is fine.
func stdOf(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) < 2 {
		return decimal.Zero
	}
	fs := make([]float64, len(vals))
	var sum float64
	for i, v := range vals {
		fs[i] = v.InexactFloat64()
		sum += fs[i]
	}
	mean := sum / float64(len(fs))
	var sq float64
	for _, f := range fs {
		dev := f - mean
		sq += dev * dev
	}
	return decimal.NewFromFloat(math.Sqrt(sq / float64(len(fs)-1))).Round(6)
}

func logLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
