// BTC chart feed CLI
// This application serves a paginated, deduplicated BTC candle series to a
// chart renderer and provides commands for fetching, exporting and pricing
// from the command line.
//
// Usage:
//
//	chartd serve
//	chartd fetch --timeframe 4h --pages 3 --format table
//	chartd export --timeframe 1d --start 2024-01-01 --end 2024-06-30
//	chartd price
//
// For detailed help on any command, use: chartd <command> --help
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/go-btc-chart/internal/api"
	"github.com/johnayoung/go-btc-chart/internal/config"
	chartErrors "github.com/johnayoung/go-btc-chart/internal/errors"
	"github.com/johnayoung/go-btc-chart/internal/exchange"
	"github.com/johnayoung/go-btc-chart/internal/export"
	"github.com/johnayoung/go-btc-chart/internal/gaps"
	"github.com/johnayoung/go-btc-chart/internal/logger"
	"github.com/johnayoung/go-btc-chart/internal/metrics"
	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/johnayoung/go-btc-chart/internal/pager"
	"github.com/johnayoung/go-btc-chart/internal/price"
	"github.com/johnayoung/go-btc-chart/internal/storage"
	"github.com/johnayoung/go-btc-chart/internal/stream"
	"github.com/johnayoung/go-btc-chart/internal/viewport"
)

// CLI version information
const (
	Version       = "1.0.0"
	AppName       = "chartd"
	ConfigFile    = "chartd.yaml"
	ConfigPathEnv = "CHARTD_CONFIG"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
	ExitInterrupt     = 130
)

// CLI holds the components shared by every command
type CLI struct {
	config     *config.AppConfig
	logManager *logger.LoggerManager
	logger     *slog.Logger
	collector  *metrics.Collector
	exchange   *exchange.BinanceClient
	archive    storage.Archive
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "--version", "-v":
		fmt.Printf("%s version %s\n", AppName, Version)
		return
	case "--help", "-h", "help":
		if len(args) > 0 {
			printCommandHelp(args[0])
		} else {
			printUsage()
		}
		return
	case "serve", "fetch", "export", "price":
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}

	if wantsHelp(args) {
		printCommandHelp(command)
		return
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := &CLI{}
	if err := cli.initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize CLI: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.close()

	var err error
	switch command {
	case "serve":
		err = cli.handleServe(ctx, args)
	case "fetch":
		err = cli.handleFetch(ctx, args)
	case "export":
		err = cli.handleExport(ctx, args)
	case "price":
		err = cli.handlePrice(ctx, args)
	}

	if err != nil {
		cli.logger.Error("command failed", "command", command, "error", err)
		cli.close()
		os.Exit(exitCodeFor(ctx, err))
	}
}

// exitCodeFor maps a command error to an exit code
func exitCodeFor(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		return ExitInterrupt
	}
	if _, ok := err.(*usageError); ok {
		return ExitUsageError
	}
	switch chartErrors.GetErrorType(err) {
	case chartErrors.ErrorTypeNetwork, chartErrors.ErrorTypeTimeout, chartErrors.ErrorTypeCircuitOpen,
		chartErrors.ErrorTypeServerError, chartErrors.ErrorTypeRateLimit:
		return ExitConnectionErr
	}
	return ExitDataError
}

// usageError reports bad command line input
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func wantsHelp(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

// initialize loads configuration and builds the shared components
func (cli *CLI) initialize(ctx context.Context) error {
	configPath := os.Getenv(ConfigPathEnv)
	if configPath == "" {
		configPath = ConfigFile
	}

	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.NewConfigManager(configPath, bootstrap).LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cli.config = cfg

	logManager, err := logger.NewLoggerManager(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	cli.logManager = logManager
	cli.logger = logManager.GetLogger()

	if cfg.Metrics.Enabled {
		cli.collector = metrics.NewCollector()
	}

	cli.exchange = createExchange(cfg, logManager)
	if cli.collector != nil {
		cli.exchange.SetRecorder(cli.collector)
	}

	archive, err := storage.NewArchive(ctx, cfg.Storage, logManager.GetComponentLogger("storage"))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	cli.archive = archive

	return nil
}

func (cli *CLI) close() {
	if cli.archive != nil {
		if err := cli.archive.Close(); err != nil {
			cli.logger.Warn("failed to close archive", "error", err)
		}
		cli.archive = nil
	}
	if cli.logManager != nil {
		cli.logManager.Close()
		cli.logManager = nil
	}
}

// createExchange builds the Binance client with retries and circuit breaking
func createExchange(cfg *config.AppConfig, logManager *logger.LoggerManager) *exchange.BinanceClient {
	errCfg := cfg.ErrorHandling
	policies := make(map[string]config.RetryPolicyConfig, len(errCfg.ComponentPolicies)+1)
	for k, v := range errCfg.ComponentPolicies {
		policies[k] = v
	}
	if _, ok := policies["exchange"]; !ok {
		policies["exchange"] = cfg.Exchange.RetryPolicy
	}
	errCfg.ComponentPolicies = policies

	classifier := chartErrors.NewErrorClassifier(errCfg, logManager.GetComponentLogger("errors"))

	var breaker *chartErrors.CircuitBreaker
	if errCfg.EnableCircuitBreaker {
		breaker = chartErrors.NewCircuitBreaker("exchange", errCfg.CircuitBreakerConfig)
	}

	return exchange.NewBinanceClient(cfg.Exchange, classifier, breaker, logManager.GetComponentLogger("exchange"))
}

// newController builds a pagination controller wired to the archive and metrics
func (cli *CLI) newController() *pager.Controller {
	pcfg := cli.config.Pagination
	tf, err := models.ParseTimeframe(pcfg.DefaultTimeframe)
	if err != nil {
		tf = models.DefaultTimeframe
	}

	controller := pager.New(cli.exchange, pager.Config{
		InitialLimit:     pcfg.InitialLimit,
		LoadMoreLimit:    pcfg.LoadMoreLimit,
		DefaultTimeframe: tf,
		RequestTimeout:   config.DurationOr(pcfg.RequestTimeout, 30*time.Second),
		Symbol:           cli.config.Exchange.Symbol,
		Logger:           cli.logManager.GetComponentLogger("pager"),
	})
	if cli.collector != nil {
		controller.SetRecorder(cli.collector)
	}
	if cli.archive != nil {
		controller.SetSink(cli.archive)
	}
	return controller
}

// handleServe runs the HTTP API, the price poller and the live stream
func (cli *CLI) handleServe(ctx context.Context, args []string) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	cfg := cli.config
	if flags.Addr != "" {
		cfg.Server.Addr = flags.Addr
	}
	if flags.Stream {
		cfg.Stream.Enabled = true
	}

	controller := cli.newController()

	trigger := viewport.NewTrigger(controller.OnScrollNearOldest,
		cfg.Pagination.ScrollThreshold,
		config.DurationOr(cfg.Pagination.ScrollInterval, viewport.DefaultMinInterval),
		cli.logManager.GetComponentLogger("viewport"))
	defer trigger.Close()

	pollInterval := config.DurationOr(cfg.Poller.Interval, price.DefaultInterval)
	poller := price.NewPoller(cli.exchange,
		config.DurationOr(cfg.Pagination.RequestTimeout, 0),
		cli.logManager.GetComponentLogger("price"))
	if cli.collector != nil {
		poller.SetRecorder(cli.collector)
	}
	defer poller.Close()
	if cfg.Poller.Auto {
		poller.EnableAuto(pollInterval)
	}

	health := metrics.NewHealth(5 * time.Second)
	health.Register("exchange", cli.exchange)
	if cli.archive != nil {
		health.Register("archive", cli.archive)
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Controller:  controller,
		Poller:      poller,
		Trigger:     trigger,
		Health:      health,
		Collector:   cli.collector,
		MetricsPath: cfg.Metrics.Path,
		Chart:       cfg.Chart,
		Symbol:      cfg.Exchange.Symbol,
		Logger:      cli.logManager.GetComponentLogger("api"),
	})

	if err := controller.SetTimeframe(ctx, controller.ActiveTimeframe()); err != nil {
		return err
	}

	cli.logger.Info("starting chart feed",
		"addr", cfg.Server.Addr,
		"symbol", cfg.Exchange.Symbol,
		"timeframe", controller.ActiveTimeframe(),
		"stream", cfg.Stream.Enabled,
		"storage", cfg.Storage.Type)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	if cfg.Stream.Enabled {
		klines := stream.NewKlineStream(cfg.Stream, cfg.Exchange.Symbol, controller, cli.logManager.GetComponentLogger("stream"))
		if cli.collector != nil {
			klines.SetRecorder(cli.collector)
		}
		g.Go(func() error {
			return klines.Run(gctx)
		})
	}

	err = g.Wait()

	waitCtx, cancel := context.WithTimeout(context.Background(), config.DurationOr(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if werr := controller.Close(waitCtx); werr != nil {
		cli.logger.Warn("pending page requests did not settle", "error", werr)
	}
	return err
}

// handleFetch loads the newest page and a number of older pages
func (cli *CLI) handleFetch(ctx context.Context, args []string) error {
	flags, err := parseFetchFlags(args)
	if err != nil {
		return err
	}
	tf, err := models.ParseTimeframe(flags.Timeframe)
	if err != nil {
		return usageErrorf("%v", err)
	}

	controller := cli.newController()
	if err := controller.LoadInitial(ctx, tf); err != nil {
		return err
	}
	if st := controller.State(); st.Error != "" {
		return fmt.Errorf("initial page failed: %s", st.Error)
	}

	for i := 0; i < flags.Pages && ctx.Err() == nil; i++ {
		if !controller.LoadOlder(ctx) {
			break
		}
		if st := controller.State(); st.Error != "" {
			return fmt.Errorf("older page %d failed: %s", i+1, st.Error)
		}
	}

	st := controller.State()
	points := controller.Points()
	found := gaps.Detect(points, tf)
	gapCount, missing := gaps.Summary(found)

	cli.logger.Info("fetch completed",
		"timeframe", tf,
		"points", len(points),
		"has_more_older", st.HasMoreOlder,
		"gaps", gapCount,
		"missing_buckets", missing)

	switch flags.Format {
	case "json":
		return outputJSON(st)
	case "csv":
		return outputCSV(points)
	default:
		return outputTable(points, flags.Limit)
	}
}

// handleExport writes archived data to a parquet file
func (cli *CLI) handleExport(ctx context.Context, args []string) error {
	flags, err := parseExportFlags(args)
	if err != nil {
		return err
	}
	if cli.archive == nil {
		return fmt.Errorf("export needs a storage backend, storage type is %q", cli.config.Storage.Type)
	}

	tf, err := models.ParseTimeframe(flags.Timeframe)
	if err != nil {
		return usageErrorf("%v", err)
	}

	req := storage.QueryRequest{
		Symbol:    cli.config.Exchange.Symbol,
		Timeframe: tf,
		Limit:     flags.Limit,
	}
	if flags.Start != "" {
		if req.Start, err = time.Parse("2006-01-02", flags.Start); err != nil {
			return usageErrorf("invalid start date format, use YYYY-MM-DD: %v", err)
		}
	}
	if flags.End != "" {
		if req.End, err = time.Parse("2006-01-02", flags.End); err != nil {
			return usageErrorf("invalid end date format, use YYYY-MM-DD: %v", err)
		}
	}

	dir := flags.Dir
	if dir == "" {
		dir = cli.config.Export.Dir
	}

	// the archive only holds what this process fetched, so fill it first
	controller := cli.newController()
	if err := controller.LoadInitial(ctx, tf); err != nil {
		return err
	}
	for i := 0; i < flags.Pages; i++ {
		if !controller.LoadOlder(ctx) {
			break
		}
	}
	if st := controller.State(); st.Error != "" {
		cli.logger.Warn("exporting partial archive", "error", st.Error)
	}

	result, err := export.FromArchive(ctx, cli.archive, req, dir)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	cli.logger.Info("export completed", "path", result.Path, "rows", result.Rows)
	fmt.Printf("Exported %d rows to %s\n", result.Rows, result.Path)
	return nil
}

// handlePrice prints the current price and the previous minute's close
func (cli *CLI) handlePrice(ctx context.Context, args []string) error {
	flags, err := parsePriceFlags(args)
	if err != nil {
		return err
	}

	poller := price.NewPoller(cli.exchange, 0, cli.logManager.GetComponentLogger("price"))
	defer poller.Close()

	info, err := poller.FetchPrices(ctx)
	if err != nil {
		return err
	}

	if flags.Format == "json" {
		return outputJSON(info)
	}

	fmt.Printf("%s current:  %s\n", cli.config.Exchange.Symbol, formatPrice(info.Current))
	fmt.Printf("%s previous: %s\n", cli.config.Exchange.Symbol, formatPrice(info.Previous))
	if abs, pct, ok := info.Change(); ok {
		fmt.Printf("change:   %+.2f (%+.2f%%)\n", abs, pct)
	}
	return nil
}

func formatPrice(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// ServeFlags represents flags for the serve command
type ServeFlags struct {
	Addr   string
	Stream bool
}

// FetchFlags represents flags for the fetch command
type FetchFlags struct {
	Timeframe string
	Pages     int
	Format    string
	Limit     int
}

// ExportFlags represents flags for the export command
type ExportFlags struct {
	Timeframe string
	Start     string
	End       string
	Dir       string
	Pages     int
	Limit     int
}

// PriceFlags represents flags for the price command
type PriceFlags struct {
	Format string
}

func parseServeFlags(args []string) (*ServeFlags, error) {
	flags := &ServeFlags{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr", "-a":
			if i+1 >= len(args) {
				return nil, usageErrorf("--addr requires a value")
			}
			flags.Addr = args[i+1]
			i++
		case "--stream":
			flags.Stream = true
		default:
			return nil, usageErrorf("unknown flag: %s", args[i])
		}
	}
	return flags, nil
}

func parseFetchFlags(args []string) (*FetchFlags, error) {
	flags := &FetchFlags{
		Timeframe: string(models.DefaultTimeframe),
		Format:    "table",
		Limit:     50,
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--timeframe", "-t":
			if i+1 >= len(args) {
				return nil, usageErrorf("--timeframe requires a value")
			}
			flags.Timeframe = args[i+1]
			i++
		case "--pages", "-p":
			n, err := intFlag(args, i, "--pages")
			if err != nil {
				return nil, err
			}
			flags.Pages = n
			i++
		case "--format", "-f":
			if i+1 >= len(args) {
				return nil, usageErrorf("--format requires a value")
			}
			flags.Format = args[i+1]
			i++
		case "--limit", "-l":
			n, err := intFlag(args, i, "--limit")
			if err != nil {
				return nil, err
			}
			flags.Limit = n
			i++
		default:
			return nil, usageErrorf("unknown flag: %s", args[i])
		}
	}

	switch flags.Format {
	case "table", "json", "csv":
	default:
		return nil, usageErrorf("invalid format %q, use table, json or csv", flags.Format)
	}
	return flags, nil
}

func parseExportFlags(args []string) (*ExportFlags, error) {
	flags := &ExportFlags{Timeframe: string(models.DefaultTimeframe)}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--timeframe", "-t":
			if i+1 >= len(args) {
				return nil, usageErrorf("--timeframe requires a value")
			}
			flags.Timeframe = args[i+1]
			i++
		case "--start", "-s":
			if i+1 >= len(args) {
				return nil, usageErrorf("--start requires a value")
			}
			flags.Start = args[i+1]
			i++
		case "--end", "-e":
			if i+1 >= len(args) {
				return nil, usageErrorf("--end requires a value")
			}
			flags.End = args[i+1]
			i++
		case "--dir", "-o":
			if i+1 >= len(args) {
				return nil, usageErrorf("--dir requires a value")
			}
			flags.Dir = args[i+1]
			i++
		case "--pages", "-p":
			n, err := intFlag(args, i, "--pages")
			if err != nil {
				return nil, err
			}
			flags.Pages = n
			i++
		case "--limit", "-l":
			n, err := intFlag(args, i, "--limit")
			if err != nil {
				return nil, err
			}
			flags.Limit = n
			i++
		default:
			return nil, usageErrorf("unknown flag: %s", args[i])
		}
	}
	return flags, nil
}

func parsePriceFlags(args []string) (*PriceFlags, error) {
	flags := &PriceFlags{Format: "text"}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--format", "-f":
			if i+1 >= len(args) {
				return nil, usageErrorf("--format requires a value")
			}
			flags.Format = args[i+1]
			i++
		default:
			return nil, usageErrorf("unknown flag: %s", args[i])
		}
	}
	return flags, nil
}

func intFlag(args []string, i int, name string) (int, error) {
	if i+1 >= len(args) {
		return 0, usageErrorf("%s requires a value", name)
	}
	n, err := strconv.Atoi(args[i+1])
	if err != nil {
		return 0, usageErrorf("invalid %s value: %v", name, err)
	}
	if n < 0 {
		return 0, usageErrorf("%s must not be negative", name)
	}
	return n, nil
}

// Output formatting functions

// outputJSON writes v as indented JSON
func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// outputCSV writes points as CSV
func outputCSV(points []models.Point) error {
	fmt.Println("time,open,high,low,close,volume,color")
	for _, p := range points {
		fmt.Printf("%s,%s,%s,%s,%s,%s,%s\n",
			p.OpenTime().Format(time.RFC3339),
			formatFloat(p.Candle.Open),
			formatFloat(p.Candle.High),
			formatFloat(p.Candle.Low),
			formatFloat(p.Candle.Close),
			formatFloat(p.Volume.Value),
			p.Volume.Color)
	}
	return nil
}

// outputTable writes the newest points as a table
func outputTable(points []models.Point, limit int) error {
	shown := points
	if limit > 0 && len(shown) > limit {
		shown = shown[len(shown)-limit:]
	}

	fmt.Printf("%-20s %-12s %-12s %-12s %-12s %-15s %-5s\n",
		"Time", "Open", "High", "Low", "Close", "Volume", "Dir")
	fmt.Println(strings.Repeat("-", 94))

	for _, p := range shown {
		fmt.Printf("%-20s %-12s %-12s %-12s %-12s %-15s %-5s\n",
			p.OpenTime().Format("2006-01-02 15:04"),
			formatFloat(p.Candle.Open),
			formatFloat(p.Candle.High),
			formatFloat(p.Candle.Low),
			formatFloat(p.Candle.Close),
			formatFloat(p.Volume.Value),
			p.Volume.Color)
	}

	if len(shown) < len(points) {
		fmt.Printf("\n... showing newest %d of %d points (use --limit to see more)\n", len(shown), len(points))
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func printUsage() {
	fmt.Printf(`%s - BTC chart feed v%s

USAGE:
    %s <command> [options]

COMMANDS:
    serve       Serve the chart series, prices and gaps over HTTP
    fetch       Load the newest page and older pages and print the series
    export      Fetch and archive a series, then write it to a parquet file
    price       Print the current price and the previous minute's close

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Serve the API on :8080 with live updates
    %s serve --stream

    # Print the last 20 four-hour bars after loading two older pages
    %s fetch --timeframe 4h --pages 2 --limit 20

    # Export daily bars for the first half of 2024
    %s export --timeframe 1d --pages 1 --start 2024-01-01 --end 2024-06-30

CONFIGURATION:
    Configuration can be provided via:
    - Config file: %s (YAML or JSON, path overridable with %s)
    - Environment variables (e.g. EXCHANGE_SYMBOL, STORAGE_TYPE, LOG_LEVEL)

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, AppName, AppName, AppName, ConfigFile, ConfigPathEnv, AppName)
}

// printCommandHelp prints detailed help for a specific command
func printCommandHelp(command string) {
	switch command {
	case "serve":
		fmt.Printf(`%s serve - Serve the chart feed over HTTP

USAGE:
    %s serve [options]

OPTIONS:
    --addr, -a <addr>   Listen address (default from config, :8080)
    --stream            Apply live kline updates from the exchange websocket

ENDPOINTS:
    GET    /api/v1/state          Series, pagination flags and palette
    PUT    /api/v1/timeframe      Switch timeframe {"timeframe":"4h"}
    POST   /api/v1/older          Load the next older page
    POST   /api/v1/scroll         Visible range {"from":3,"to":80}
    DELETE /api/v1/error          Dismiss the error message
    GET    /api/v1/gaps           Missing buckets in the series
    GET    /api/v1/prices         Current and previous prices (?refresh=true)
    PUT    /api/v1/prices/auto    {"enabled":true,"interval":"10s"}
    GET    /api/v1/timeframes     Supported timeframes
    GET    /healthz               Dependency health
`, AppName, AppName)
	case "fetch":
		fmt.Printf(`%s fetch - Load and print the series

USAGE:
    %s fetch [options]

OPTIONS:
    --timeframe, -t <tf>   Timeframe (default 1h)
    --pages, -p <n>        Older pages to load after the newest (default 0)
    --format, -f <fmt>     table, json or csv (default table)
    --limit, -l <n>        Newest rows shown in table format (default 50)
`, AppName, AppName)
	case "export":
		fmt.Printf(`%s export - Write archived bars to parquet

USAGE:
    %s export [options]

OPTIONS:
    --timeframe, -t <tf>   Timeframe (default 1h)
    --pages, -p <n>        Older pages to fetch into the archive first (default 0)
    --start, -s <date>     First day, YYYY-MM-DD
    --end, -e <date>       Last day, YYYY-MM-DD
    --dir, -o <dir>        Output directory (default from config)
    --limit, -l <n>        Maximum rows
`, AppName, AppName)
	case "price":
		fmt.Printf(`%s price - Print current prices

USAGE:
    %s price [--format text|json]
`, AppName, AppName)
	default:
		fmt.Printf("No detailed help available for command: %s\n", command)
		printUsage()
	}
}
