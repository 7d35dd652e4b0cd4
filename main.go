package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/cybertron10/contextscan/internal/config"
	"github.com/cybertron10/contextscan/internal/headless"
	"github.com/cybertron10/contextscan/internal/htmlctx"
	"github.com/cybertron10/contextscan/internal/output"
	"github.com/cybertron10/contextscan/internal/paramsmapper"
	"github.com/cybertron10/contextscan/internal/scanner"
)

var logger = newLogger(os.Stderr, false)

var errURLAndFile = errors.New("cannot specify both -url and -file")

// newLogger keeps warnings and errors when quiet is set
func newLogger(w io.Writer, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	var (
		targetURL     = flag.String("url", "", "Target URL to scan")
		urlFile       = flag.String("file", "", "File containing list of URLs to scan (one per line)")
		configPath    = flag.String("config", "", "Config file (.yaml, .toml or .json)")
		outputPath    = flag.String("output", "", "Output file for results (stdout when empty)")
		concurrency   = flag.Int("concurrency", 4, "Parameters tested concurrently per URL")
		headlessMode  = flag.Bool("headless", false, "Confirm findings in headless Chromium")
		quiet         = flag.Bool("quiet", false, "Quiet output (only key progress and findings)")
		timeout       = flag.Duration("timeout", 15*time.Second, "HTTP request timeout")
		maxPayloads   = flag.Int("max-payloads", 8, "Payloads tried per reflection context (0 = all)")
		skipCharCheck = flag.Bool("skip-charcheck", false, "Skip the special character analysis")
		jsonOut       = flag.Bool("json", false, "Write results as JSON")
		wordlist      = flag.String("wordlist", "", "Parameter wordlist for hidden reflection discovery")
		headersFile   = flag.String("headers", "", "File of extra request headers, one 'Name: value' per line")
		ignore        = flag.String("ignore-contexts", "", "Comma-separated contexts to report but not attack")
		inspect       = flag.String("inspect", "", "Classify -marker in a local HTML file ('-' for stdin) and exit")
		marker        = flag.String("marker", "", "Needle to classify with -inspect")
		listContexts  = flag.Bool("list-contexts", false, "List every reflection context and exit")
	)
	flag.Parse()

	if *listContexts {
		for _, c := range htmlctx.AllContextKinds() {
			fmt.Println(c.Name())
		}
		return
	}

	if *inspect != "" {
		if err := runInspect(*inspect, *marker); err != nil {
			logger.Error("Inspect failed", "error", err)
			os.Exit(1)
		}
		return
	}

	fileLayer, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	envLayer, err := config.FromEnv(os.Getenv)
	if err != nil {
		logger.Error("Invalid environment configuration", "error", err)
		os.Exit(1)
	}

	// only flags given on the command line override lower layers
	var (
		flagLayer  config.Config
		urlFlagSet bool
	)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			flagLayer.URL = targetURL
			urlFlagSet = true
		case "concurrency":
			flagLayer.Concurrency = concurrency
		case "headless":
			flagLayer.Headless = headlessMode
		case "quiet":
			flagLayer.Quiet = quiet
		case "timeout":
			flagLayer.Timeout = timeout
		case "max-payloads":
			flagLayer.MaxPayloads = maxPayloads
		case "skip-charcheck":
			flagLayer.SkipCharCheck = skipCharCheck
		case "output":
			flagLayer.Output = outputPath
		case "wordlist":
			flagLayer.Wordlist = wordlist
		case "json":
			format := "text"
			if *jsonOut {
				format = "json"
			}
			flagLayer.Format = &format
		case "ignore-contexts":
			list := splitList(*ignore)
			flagLayer.IgnoreContexts = &list
		}
	})
	if *headersFile != "" {
		headers, err := paramsmapper.LoadHeaders(*headersFile)
		if err != nil {
			logger.Error("Failed to load headers", "error", err)
			os.Exit(1)
		}
		flagLayer.Headers = &headers
	}

	settings := config.Merge(config.Defaults(), fileLayer, envLayer, flagLayer)
	if err := settings.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if settings.URL == "" && *urlFile == "" {
		fmt.Println("Usage: contextscan -url https://example.com/?q=1 [options]")
		fmt.Println("   or: contextscan -file urls.txt [options]")
		fmt.Println("   or: contextscan -inspect page.html -marker NEEDLE")
		flag.PrintDefaults()
		return
	}
	single, err := pickTarget(settings.URL, urlFlagSet, *urlFile)
	if err != nil {
		fmt.Println("Error: Cannot specify both -url and -file. Use one or the other.")
		os.Exit(1)
	}

	logger = newLogger(os.Stderr, settings.Quiet)
	scanner.SetQuiet(settings.Quiet)
	headless.SetQuiet(settings.Quiet)
	paramsmapper.SetQuiet(settings.Quiet)

	urls := []string{single}
	if single == "" {
		urls, err = loadURLsFromFile(*urlFile)
		if err != nil {
			logger.Error("Failed to load URLs", "file", *urlFile, "error", err)
			os.Exit(1)
		}
		logger.Info("Loaded URLs", "count", len(urls), "file", *urlFile)
	}

	var words []string
	if settings.Wordlist != "" {
		words, err = paramsmapper.LoadWordlist(settings.Wordlist)
		if err != nil {
			logger.Error("Failed to load wordlist", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := runScans(ctx, urls, settings, words); err != nil {
		logger.Error("Scan failed", "error", err)
		os.Exit(1)
	}
}

func runScans(ctx context.Context, urls []string, settings config.Settings, words []string) error {
	var (
		results []*scanner.ScanResult
		vulns   []scanner.Vulnerability
	)
	for i, target := range urls {
		logger.Info("Scanning", "url", target, "progress", fmt.Sprintf("%d/%d", i+1, len(urls)))
		s := scanner.NewScanner(&scanner.Config{
			URL:            target,
			Headers:        settings.Headers,
			Quiet:          settings.Quiet,
			Headless:       settings.Headless,
			Timeout:        settings.Timeout,
			Concurrency:    settings.Concurrency,
			MaxPayloads:    settings.MaxPayloads,
			SkipCharCheck:  settings.SkipCharCheck,
			Wordlist:       words,
			IgnoreContexts: settings.IgnoredKinds(),
		})
		result, err := s.Scan(ctx)
		if closeErr := s.Close(); closeErr != nil {
			logger.Warn("Failed to close browser", "error", closeErr)
		}
		if errors.Is(err, context.Canceled) {
			logger.Warn("Interrupted, writing partial results")
			break
		}
		if err != nil {
			logger.Warn("Skipping URL", "url", target, "error", err)
			continue
		}
		for _, v := range result.Vulnerabilities {
			logger.Info("XSS found", "parameter", v.Parameter, "context", v.Context, "confidence", v.Confidence, "url", v.ExploitURL)
		}
		results = append(results, result)
		vulns = append(vulns, result.Vulnerabilities...)
	}

	if len(vulns) == 0 {
		logger.Info("No vulnerabilities found")
	} else {
		logger.Info("Scan finished", "vulnerabilities", len(vulns))
	}
	return writeResults(settings, results, vulns)
}

func writeResults(settings config.Settings, results []*scanner.ScanResult, vulns []scanner.Vulnerability) error {
	var w io.Writer = os.Stdout
	if settings.Output != "" {
		if err := os.MkdirAll(filepath.Dir(settings.Output), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		f, err := os.Create(settings.Output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
		logger.Info("Writing results", "file", settings.Output)
	}

	if settings.Format == "json" {
		for _, r := range results {
			if err := output.WriteJSON(w, r); err != nil {
				return err
			}
		}
		return nil
	}
	return output.WriteText(w, vulns)
}

// runInspect classifies every occurrence of needle in a local document
func runInspect(path, needle string) error {
	if needle == "" {
		return errors.New("-inspect requires -marker")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	doc := string(data)
	occs, err := htmlctx.Scan(doc, needle)
	if err != nil {
		return err
	}
	return output.WriteOccurrences(os.Stdout, doc, occs, output.TerminalWidth(os.Stdout))
}

func loadURLsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var urls []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		} else {
			logger.Warn("Skipping invalid URL format", "line", line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

// pickTarget returns the single URL to scan, or "" when the targets come
// from urlFile. A URL from config or the environment yields to -file.
func pickTarget(settingsURL string, urlFlagSet bool, urlFile string) (string, error) {
	if urlFile == "" {
		return settingsURL, nil
	}
	if urlFlagSet {
		return "", errURLAndFile
	}
	return "", nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
