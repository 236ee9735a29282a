package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tidewalk/crawlspace/internal/config"
	"github.com/tidewalk/crawlspace/internal/frontier"
	"github.com/tidewalk/crawlspace/internal/sample"
)

func TestSetVersionInfo(t *testing.T) {
	version := "1.2.3"
	buildTime := "2023-12-01T10:00:00Z"

	SetVersionInfo(version, buildTime)

	expected := "1.2.3 (built 2023-12-01T10:00:00Z)"
	if rootCmd.Version != expected {
		t.Errorf("Expected version %s, got %s", expected, rootCmd.Version)
	}
}

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "crawlspace [flags] [url|file ...]" {
		t.Errorf("Unexpected use line: %s", rootCmd.Use)
	}

	if rootCmd.RunE == nil {
		t.Error("RunE should be set to runFrontier")
	}
}

func TestInitConfig(t *testing.T) {
	// Create a temporary config file
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
compressed: true
default_delay: 2s
language: de
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	// Set config file
	cfgFile = configFile

	// Initialize config
	initConfig()

	// Check if config was loaded
	if viper.ConfigFileUsed() != configFile {
		t.Errorf("Expected config file %s, got %s", configFile, viper.ConfigFileUsed())
	}

	// Reset for other tests
	cfgFile = ""
	viper.Reset()
}

func TestFlagBinding(t *testing.T) {
	// This tests that the init() function properly sets up flags
	flags := rootCmd.Flags()

	expectedFlags := []string{
		"show-config",
		"dump",
		"unvisited",
		"stats",
		"plan",
		"pace",
		"sample",
		"filter",
		"sample-min",
		"sample-max",
		"from-html",
		"base",
		"keep-navigation",
		"allow-external",
		"compressed",
		"strict",
		"language",
		"default-delay",
		"time-limit",
		"expected-urls",
		"snapshot",
		"resume",
		"verbose",
		"log-level",
		"log-file",
	}

	for _, flagName := range expectedFlags {
		if flags.Lookup(flagName) == nil {
			t.Errorf("Expected flag %s to be defined", flagName)
		}
	}

	// Test persistent flags
	persistentFlags := rootCmd.PersistentFlags()
	if persistentFlags.Lookup("config") == nil {
		t.Error("Expected persistent flag 'config' to be defined")
	}
}

// frontierCommand builds a command carrying the flags runFrontier and its
// helpers read, detached from the package-level rootCmd so tests do not
// leak flag state into each other.
func frontierCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("show-config", false, "")
	cmd.Flags().Bool("from-html", false, "")
	cmd.Flags().String("base", "", "")
	cmd.Flags().Bool("dump", false, "")
	cmd.Flags().Bool("unvisited", false, "")
	cmd.Flags().Bool("stats", false, "")
	cmd.Flags().Int("plan", 0, "")
	cmd.Flags().Int("pace", 0, "")
	cmd.Flags().Int("sample", 0, "")
	cmd.Flags().String("filter", "", "")
	cmd.Flags().Int("sample-min", 0, "")
	cmd.Flags().Int("sample-max", 0, "")
	cmd.SetContext(context.Background())
	return cmd
}

func TestRunFrontierDump(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := frontierCommand()
	if err := cmd.Flags().Set("dump", "true"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runFrontier(cmd, []string{"https://a.com/1", "https://a.com/2"})
	if err != nil {
		t.Fatalf("runFrontier failed: %v", err)
	}

	want := "https://a.com/1\tfalse\nhttps://a.com/2\tfalse\n"
	if out.String() != want {
		t.Errorf("dump output = %q, want %q", out.String(), want)
	}
}

func TestRunFrontierStatsDefault(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := frontierCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runFrontier(cmd, []string{"https://a.com/1", "https://a.com/2", "https://b.com/x"})
	if err != nil {
		t.Fatalf("runFrontier failed: %v", err)
	}

	want := "https://a.com\t0/2\nhttps://b.com\t0/1\ntotal\t0/3\tdomains\t2\n"
	if out.String() != want {
		t.Errorf("stats output = %q, want %q", out.String(), want)
	}
}

func TestRunFrontierSnapshotRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "frontier.db")

	// First run loads two URLs and persists on exit
	viper.Reset()
	viper.Set("snapshot", dbPath)

	cmd := frontierCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := runFrontier(cmd, []string{"https://a.com/1", "https://a.com/2"}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("snapshot database missing after run: %v", err)
	}

	// Second run resumes from the snapshot with no new input
	viper.Reset()
	defer viper.Reset()
	viper.Set("snapshot", dbPath)
	viper.Set("resume", true)

	resumed := frontierCommand()
	if err := resumed.Flags().Set("unvisited", "true"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}
	var resumedOut bytes.Buffer
	resumed.SetOut(&resumedOut)
	if err := runFrontier(resumed, nil); err != nil {
		t.Fatalf("resume run failed: %v", err)
	}

	want := "https://a.com/1\nhttps://a.com/2\n"
	if resumedOut.String() != want {
		t.Errorf("resumed output = %q, want %q", resumedOut.String(), want)
	}
}

func TestRunFrontierFromHTMLRequiresBase(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := frontierCommand()
	if err := cmd.Flags().Set("from-html", "true"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}

	err := runFrontier(cmd, []string{"page.html"})
	if err == nil {
		t.Fatal("Expected error when --from-html is set without --base")
	}
	if !strings.Contains(err.Error(), "--base") {
		t.Errorf("Expected error naming --base, got: %v", err)
	}
}

func TestRunFrontierBaseMustBeAbsolute(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := frontierCommand()
	if err := cmd.Flags().Set("from-html", "true"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}
	if err := cmd.Flags().Set("base", "example.com/dir/"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}

	err := runFrontier(cmd, []string{"page.html"})
	if err == nil {
		t.Fatal("Expected error for a --base without scheme")
	}
	if !strings.Contains(err.Error(), "absolute") {
		t.Errorf("Expected error about absolute URL, got: %v", err)
	}
}

func TestRunFrontierSampleFilter(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := frontierCommand()
	if err := cmd.Flags().Set("sample", "5"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}
	if err := cmd.Flags().Set("filter", "/2"); err != nil {
		t.Fatalf("Failed to set flag: %v", err)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)

	args := []string{"https://a.com/1", "https://a.com/2", "https://b.com/20"}
	if err := runFrontier(cmd, args); err != nil {
		t.Fatalf("runFrontier failed: %v", err)
	}

	// Both matching URLs survive untruncated, so the draw is deterministic
	want := "https://a.com/2\nhttps://b.com/20\n"
	if out.String() != want {
		t.Errorf("sample output = %q, want %q", out.String(), want)
	}
}

func TestLoadInputStdin(t *testing.T) {
	cmd := frontierCommand()
	cmd.SetIn(strings.NewReader("https://a.com/1\n# comment\n\nhttps://a.com/2\n"))

	store := frontier.New(frontier.Config{})
	cfg := config.DefaultConfig()

	if err := loadInput(cmd, store, cfg, []string{"-"}, false, ""); err != nil {
		t.Fatalf("loadInput failed: %v", err)
	}
	if got := store.TotalURLCount(); got != 2 {
		t.Errorf("TotalURLCount() = %d, want 2", got)
	}
}

func TestLoadInputFile(t *testing.T) {
	listFile := filepath.Join(t.TempDir(), "urls.txt")
	content := "https://a.com/1\nhttps://b.com/2\n"
	if err := os.WriteFile(listFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write url list: %v", err)
	}

	cmd := frontierCommand()
	store := frontier.New(frontier.Config{})
	cfg := config.DefaultConfig()

	if err := loadInput(cmd, store, cfg, []string{listFile}, false, ""); err != nil {
		t.Fatalf("loadInput failed: %v", err)
	}
	if got := store.TotalURLCount(); got != 2 {
		t.Errorf("TotalURLCount() = %d, want 2", got)
	}
}

func TestLoadInputHTML(t *testing.T) {
	htmlFile := filepath.Join(t.TempDir(), "page.html")
	content := `<html><body>
		<a href="/first">First</a>
		<a href="https://example.com/second">Second</a>
		<a href="https://other.com/external">External</a>
	</body></html>`
	if err := os.WriteFile(htmlFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write html file: %v", err)
	}

	cmd := frontierCommand()
	store := frontier.New(frontier.Config{})
	cfg := config.DefaultConfig()

	if err := loadInput(cmd, store, cfg, []string{htmlFile}, true, "https://example.com/"); err != nil {
		t.Fatalf("loadInput failed: %v", err)
	}

	if store.IsKnown("https://other.com/external") {
		t.Error("external link loaded without allow_external")
	}
	if got := store.TotalURLCount(); got != 2 {
		t.Errorf("TotalURLCount() = %d, want 2", got)
	}
}

func TestWritePlan(t *testing.T) {
	plan := []frontier.ScheduleEntry{
		{Domain: "https://a.com", Path: "/1", Wait: 0},
		{Domain: "https://b.com", Path: "/x", Wait: 1500 * time.Millisecond},
	}

	var buf bytes.Buffer
	if err := writePlan(&buf, plan); err != nil {
		t.Fatalf("writePlan failed: %v", err)
	}

	want := "0.000\thttps://a.com/1\n1.500\thttps://b.com/x\n"
	if buf.String() != want {
		t.Errorf("plan output = %q, want %q", buf.String(), want)
	}
}

func TestWriteStats(t *testing.T) {
	store := frontier.New(frontier.Config{})
	store.AddURLs([]string{"https://a.com/1", "https://a.com/2", "https://b.com/x"})
	store.MarkVisited("https://a.com/1")

	var buf bytes.Buffer
	if err := writeStats(&buf, store); err != nil {
		t.Fatalf("writeStats failed: %v", err)
	}

	want := "https://a.com\t1/2\nhttps://b.com\t0/1\ntotal\t1/3\tdomains\t2\n"
	if buf.String() != want {
		t.Errorf("stats output = %q, want %q", buf.String(), want)
	}
}

func TestWriteSample(t *testing.T) {
	store := frontier.New(frontier.Config{})
	store.AddURLs([]string{"https://a.com/1", "https://a.com/2", "https://a.com/3"})

	var buf bytes.Buffer
	if err := writeSample(&buf, store, 2, sample.Options{}); err != nil {
		t.Fatalf("writeSample failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("sample lines = %d, want 2: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "https://a.com/") {
			t.Errorf("unexpected sample line %q", line)
		}
	}
}

func TestPaceEmitsScheduledURLs(t *testing.T) {
	store := frontier.New(frontier.Config{DefaultDelay: 10 * time.Millisecond})
	store.AddURLs([]string{"https://a.com/1", "https://a.com/2", "https://a.com/3"})

	cfg := config.DefaultConfig()
	cfg.DefaultDelay = 10 * time.Millisecond

	cmd := frontierCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	start := time.Now()
	if err := pace(cmd, store, cfg, 3); err != nil {
		t.Fatalf("pace failed: %v", err)
	}
	elapsed := time.Since(start)

	want := "https://a.com/1\nhttps://a.com/2\nhttps://a.com/3\n"
	if out.String() != want {
		t.Errorf("pace output = %q, want %q", out.String(), want)
	}

	// Three grants from one domain take at least two politeness periods
	if elapsed < 20*time.Millisecond {
		t.Errorf("pace finished in %v, want at least 20ms", elapsed)
	}
}

func TestPaceCancellation(t *testing.T) {
	store := frontier.New(frontier.Config{DefaultDelay: 500 * time.Millisecond})
	store.AddURLs([]string{"https://a.com/1", "https://a.com/2"})

	cfg := config.DefaultConfig()
	cfg.DefaultDelay = 500 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cmd := frontierCommand()
	cmd.SetContext(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := pace(cmd, store, cfg, 2)
	if err == nil {
		t.Fatal("Expected cancellation error from pace")
	}
	// Only the first URL fits before the cancel lands mid-wait
	if got := out.String(); got != "https://a.com/1\n" {
		t.Errorf("pace output before cancel = %q, want %q", got, "https://a.com/1\n")
	}
}
