// Package cmd provides the command-line interface for crawlspace.
// It handles command parsing, configuration loading, and running one
// frontier operation over the loaded input.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tidewalk/crawlspace/internal/config"
	"github.com/tidewalk/crawlspace/internal/frontier"
	"github.com/tidewalk/crawlspace/internal/loader"
	"github.com/tidewalk/crawlspace/internal/logging"
	"github.com/tidewalk/crawlspace/internal/sample"
	"github.com/tidewalk/crawlspace/internal/storage"
	"github.com/tidewalk/crawlspace/internal/urlutil"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crawlspace [flags] [url|file ...]",
	Short: "A politeness-aware crawl frontier for URL collections",
	Long: `Crawlspace keeps a crawl frontier: a domain-indexed ledger of known
and unvisited URLs with per-domain politeness scheduling.

Positional arguments are URLs, files of URLs (one per line), or with
--from-html files of HTML markup. A lone "-" reads URLs from stdin.
After loading, exactly one mode runs: --dump, --sample, --unvisited,
--plan, --pace, or the default --stats.`,
	Args: cobra.ArbitraryArgs,
	RunE: runFrontier,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./crawlspace.yml)")

	// Configuration management flags
	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Mode flags: the first one set wins, --stats is the default
	rootCmd.Flags().Bool("dump", false, "Print every known URL with its visited flag")
	rootCmd.Flags().Int("sample", 0, "Print up to N random URLs per domain")
	rootCmd.Flags().Bool("unvisited", false, "Print unvisited URLs in queue order, or sample from it with --sample")
	rootCmd.Flags().Bool("stats", false, "Print per-domain progress counters (default)")
	rootCmd.Flags().Int("plan", 0, "Print a politeness-spaced schedule of up to N URLs as TSV")
	rootCmd.Flags().Int("pace", 0, "Emit up to N scheduled URLs, waiting out each politeness delay")

	// Sampling flags, honored with --sample
	rootCmd.Flags().String("filter", "", "Sample only URLs containing this substring")
	rootCmd.Flags().Int("sample-min", 0, "Skip domains holding fewer eligible URLs when sampling")
	rootCmd.Flags().Int("sample-max", 0, "Skip domains holding more eligible URLs when sampling")

	// Input flags
	rootCmd.Flags().Bool("from-html", false, "Treat file arguments as HTML pages and load their links")
	rootCmd.Flags().String("base", "", "Page URL the HTML input was fetched from")
	rootCmd.Flags().Bool("keep-navigation", false, "Keep category and pagination pages when loading")
	rootCmd.Flags().Bool("allow-external", false, "Keep off-site links from HTML input")

	// Store flags
	rootCmd.Flags().BoolP("compressed", "z", false, "Hold URL ledgers compressed in memory")
	rootCmd.Flags().Bool("strict", false, "Aggressive canonicalization with a query allowlist")
	rootCmd.Flags().StringP("language", "L", "", "Keep only URLs matching this language code")
	rootCmd.Flags().DurationP("default-delay", "r", frontier.DefaultDelay, "Politeness delay when robots.txt names none")
	rootCmd.Flags().DurationP("time-limit", "t", time.Hour, "Planning horizon for --plan and --pace")
	rootCmd.Flags().Uint("expected-urls", 1<<20, "Sizing hint for the known-URL filter")

	// Persistence flags
	rootCmd.Flags().StringP("snapshot", "s", "", "SQLite snapshot database, persisted on exit")
	rootCmd.Flags().Bool("resume", false, "Restore the snapshot before loading input")

	// Diagnostics flags
	rootCmd.Flags().BoolP("verbose", "v", false, "Dump unvisited URLs to stderr on interrupt")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.Flags().String("log-file", "", "Log destination file, stderr when empty")

	// Bind store and persistence flags to viper
	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"compressed", "compressed"},
		{"strict", "strict"},
		{"language", "language"},
		{"keep_navigation", "keep-navigation"},
		{"allow_external", "allow-external"},
		{"default_delay", "default-delay"},
		{"time_limit", "time-limit"},
		{"expected_urls", "expected-urls"},
		{"snapshot", "snapshot"},
		{"resume", "resume"},
		{"verbose", "verbose"},
		{"log_level", "log-level"},
		{"log_file", "log-file"},
	}

	for _, bind := range bindFlags {
		if err := viper.BindPFlag(bind.viperKey, rootCmd.Flags().Lookup(bind.flagName)); err != nil {
			// Log the error but continue - non-critical for operation
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("crawlspace")
	}

	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvPrefix("CRAWLSPACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func showCurrentConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Validate configuration before showing it
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Printf("# Current crawlspace configuration\n")
	fmt.Printf("# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Printf("# Configuration file search paths: ./crawlspace.yml\n")
	fmt.Printf("# Environment variables prefix: CRAWLSPACE_\n\n")

	fmt.Print(string(yamlData))

	fmt.Printf("\n# Configuration source priority:\n")
	fmt.Printf("# 1. Command-line arguments (highest priority)\n")
	fmt.Printf("# 2. Environment variables (CRAWLSPACE_ prefix)\n")
	fmt.Printf("# 3. Configuration file (crawlspace.yml)\n")
	fmt.Printf("# 4. Default values (lowest priority)\n")

	return nil
}

func runFrontier(cmd *cobra.Command, args []string) error {
	// Handle --show-config flag first
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg := config.DefaultConfig()

	// Override with viper values
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	// Handle --show-config: display current configuration and exit
	if showConfig {
		return showCurrentConfig(cfg)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fromHTML, _ := cmd.Flags().GetBool("from-html")
	baseURL, _ := cmd.Flags().GetString("base")
	if fromHTML {
		if baseURL == "" {
			return fmt.Errorf("--from-html requires --base")
		}
		if urlutil.BaseURL(baseURL) == "" {
			return fmt.Errorf("--base must be an absolute URL, got %q", baseURL)
		}
	}

	storeCfg := cfg.StoreConfig()
	storeCfg.SplitCache = urlutil.NewCache(0)
	store := frontier.New(storeCfg)

	var snapshots *storage.SnapshotStore
	if cfg.SnapshotPath != "" {
		var err error
		snapshots, err = storage.Open(cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to open snapshot database: %w", err)
		}
		defer func() { _ = snapshots.Close() }()

		if cfg.Resume {
			if err := resumeFromSnapshot(store, snapshots, cfg.SnapshotPath); err != nil {
				return err
			}
		}
	}

	if err := loadInput(cmd, store, cfg, args, fromHTML, baseURL); err != nil {
		return err
	}

	if err := runMode(cmd, store, cfg); err != nil {
		return err
	}

	// Persist on the way out so the next run can resume
	if snapshots != nil {
		if err := snapshots.Save(store.Snapshot()); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		slog.Info("saved snapshot", "path", cfg.SnapshotPath, "domains", store.DomainCount())
	}

	return nil
}

func resumeFromSnapshot(store *frontier.Store, snapshots *storage.SnapshotStore, path string) error {
	snap, err := snapshots.Load()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		slog.Info("snapshot database holds nothing yet, starting fresh", "path", path)
		return nil
	}
	if err := store.Restore(snap); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	slog.Info("restored snapshot", "id", snap.ID, "taken_at", snap.TakenAt, "domains", store.DomainCount())
	return nil
}

// loadInput feeds the positional arguments into the store: URLs directly,
// anything else as a file of URLs, or as HTML when --from-html is set. A
// lone "-" reads a URL list from stdin.
func loadInput(cmd *cobra.Command, store *frontier.Store, cfg *config.Config, args []string, fromHTML bool, baseURL string) error {
	ld := loader.New(store, loader.Options{
		Strict:         cfg.Strict,
		Language:       cfg.Language,
		Blacklist:      urlutil.DefaultBlacklist,
		KeepNavigation: cfg.KeepNavigation,
		AllowExternal:  cfg.AllowExternal,
	})

	added := 0
	for _, arg := range args {
		switch {
		case arg == "-":
			n, err := ld.LoadReader(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			added += n
		case fromHTML && !isURL(arg):
			content, err := os.ReadFile(arg)
			if err != nil {
				return fmt.Errorf("failed to read HTML file: %w", err)
			}
			n, err := ld.AddFromHTML(content, baseURL)
			if err != nil {
				return fmt.Errorf("failed to load links from %s: %w", arg, err)
			}
			added += n
		case isURL(arg):
			added += ld.AddURLs([]string{arg})
		default:
			n, err := ld.LoadFile(arg)
			if err != nil {
				return err
			}
			added += n
		}
	}

	if len(args) > 0 {
		slog.Info("loaded input", "arguments", len(args), "added", added)
	}
	return nil
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// runMode executes the selected frontier operation and writes its output to
// the command's stdout.
func runMode(cmd *cobra.Command, store *frontier.Store, cfg *config.Config) error {
	flags := cmd.Flags()
	out := cmd.OutOrStdout()

	dump, _ := flags.GetBool("dump")
	unvisited, _ := flags.GetBool("unvisited")
	planN, _ := flags.GetInt("plan")
	paceN, _ := flags.GetInt("pace")
	sampleN, _ := flags.GetInt("sample")

	switch {
	case dump:
		return store.WriteURLs(out)
	case sampleN > 0:
		filter, _ := flags.GetString("filter")
		sampleMin, _ := flags.GetInt("sample-min")
		sampleMax, _ := flags.GetInt("sample-max")
		return writeSample(out, store, sampleN, sample.Options{
			Filter:     filter,
			ExcludeMin: sampleMin,
			ExcludeMax: sampleMax,
			Unvisited:  unvisited,
		})
	case unvisited:
		return store.WriteUnvisitedURLs(out)
	case planN > 0:
		return writePlan(out, store.DownloadSchedule(planN, cfg.TimeLimit))
	case paceN > 0:
		return pace(cmd, store, cfg, paceN)
	default:
		return writeStats(out, store)
	}
}

// writePlan prints one schedule slot per line: wait in seconds, a tab, the
// URL.
func writePlan(w io.Writer, plan []frontier.ScheduleEntry) error {
	bw := bufio.NewWriter(w)
	for _, entry := range plan {
		if _, err := fmt.Fprintf(bw, "%.3f\t%s\n", entry.Wait.Seconds(), entry.URL()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// pace emits scheduled URLs at their politeness-spaced times. An interrupt
// stops the emission; with --verbose the remaining unvisited URLs go to
// stderr before returning.
func pace(cmd *cobra.Command, store *frontier.Store, cfg *config.Config, maxURLs int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	throttle := frontier.NewThrottle(store)
	plan := store.DownloadSchedule(maxURLs, cfg.TimeLimit)
	out := cmd.OutOrStdout()

	for _, entry := range plan {
		if err := throttle.Wait(ctx, entry.Domain); err != nil {
			if store.Config().Verbose {
				_ = store.WriteUnvisitedURLs(os.Stderr)
			}
			if errors.Is(err, context.Canceled) {
				slog.Info("pacing interrupted", "emitted", "partial")
			}
			return err
		}
		if _, err := fmt.Fprintln(out, entry.URL()); err != nil {
			return err
		}
	}
	return nil
}

func writeSample(w io.Writer, store *frontier.Store, perDomain int, opts sample.Options) error {
	bw := bufio.NewWriter(w)
	for _, u := range sample.URLs(store, perDomain, opts) {
		if _, err := fmt.Fprintln(bw, u); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeStats prints one "domain visited/known" line per domain plus a
// totals line.
func writeStats(w io.Writer, store *frontier.Store) error {
	bw := bufio.NewWriter(w)
	domains := store.KnownDomains()
	visitedCounts := store.AllCounts()

	totalVisited := 0
	for i, domain := range domains {
		urls, err := store.FindKnownURLs(domain)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "%s\t%d/%d\n", domain, visitedCounts[i], len(urls)); err != nil {
			return err
		}
		totalVisited += visitedCounts[i]
	}
	if _, err := fmt.Fprintf(bw, "total\t%d/%d\tdomains\t%d\n", totalVisited, store.TotalURLCount(), len(domains)); err != nil {
		return err
	}
	return bw.Flush()
}
