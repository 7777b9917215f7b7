// Package main is the sokuin CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/cli"
	"github.com/hyperjump/sokuin/internal/config"
	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/engine/drivers"
	"github.com/hyperjump/sokuin/internal/extract"
	"github.com/hyperjump/sokuin/internal/indexer"
	"github.com/hyperjump/sokuin/internal/models"
	"github.com/hyperjump/sokuin/internal/search"
	"github.com/hyperjump/sokuin/internal/server"
	"github.com/hyperjump/sokuin/internal/storage"
	"github.com/hyperjump/sokuin/internal/watcher"
	"github.com/hyperjump/sokuin/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/sokuin/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and it does not
// exist, config.yaml in the current directory is tried, then the environment alone.
// Returns the config and the path that was loaded, empty when none was.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg, envErr := config.FromEnv()
			return cfg, "", envErr
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "import":
		runImport()
	case "flush":
		runFlush()
	case "add":
		runAdd()
	case "delete":
		runDelete()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("sokuin version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Components holds initialized services.
type Components struct {
	Store    storage.Store
	Engine   engine.Engine
	Index    engine.Index
	Searcher *search.Searcher
	Indexer  *indexer.Indexer
}

func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.Open(cfg.Storage, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	eng, err := drivers.Default().Open(cfg.Engine, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	index, err := eng.Index(ctx, cfg.Engine.Index)
	if err != nil {
		_ = eng.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to open index %q: %w", cfg.Engine.Index, err)
	}
	logger.Info("engine initialized",
		zap.String("driver", eng.Driver()),
		zap.String("index", index.Name()),
		zap.String("storage", cfg.Storage.Driver))

	return &Components{
		Store:  store,
		Engine: eng,
		Index:  index,
		Searcher: search.NewSearcher(index, store,
			search.WithLogger(logger),
			search.WithPerPage(cfg.Search.PerPage)),
		Indexer: indexer.NewIndexer(store, index, extract.NewLoader(),
			indexer.WithLogger(logger),
			indexer.WithChunkSize(cfg.Search.ImportChunkSize),
			indexer.WithExtensions(cfg.Watch.Extensions)),
	}, nil
}

// setup loads config and builds components for a one-shot command.
func setup(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fail("Failed to initialize: %v", err)
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (search requests, file imports, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	cfg.Debug = cfg.Debug || *debug
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchSvc := watcher.New(cfg.Watch, components.Indexer, watcher.WithLogger(logger))
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Searcher,
		components.Indexer,
		components.Store,
		cfg,
		logger,
		server.WithWatch(watchSvc, resolvedConfigPath),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	watchSvc.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: sokuin search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Totals count every engine hit, or with -where only hits that pass the filters
in the local store. -raw prints engine hits instead of stored records.

Examples:
  sokuin search laravel
  sokuin search -page 2 -per-page 10 laravel
  sokuin search -where id:<:11 laravel             # refined total
  sokuin search -filter source:crm laravel         # engine-side filter
  sokuin search -raw -output json laravel
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "-config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
	}
	return defaultPath
}

// perPageDefaultFromConfig returns search.per_page from the config at path, or
// search.DefaultPerPage when it cannot be loaded.
func perPageDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.PerPage <= 0 {
		return search.DefaultPerPage
	}
	return cfg.Search.PerPage
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// searchRequest is one parsed search command.
type searchRequest struct {
	Term    string
	Page    int
	PerPage int
	Take    int
	Raw     bool
	Where   []storage.Filter
	Filters map[string]string
}

func parseSearchFilters(where, filters []string) ([]storage.Filter, map[string]string, error) {
	var refine []storage.Filter
	for _, w := range where {
		f, err := storage.ParseFilter(w)
		if err != nil {
			return nil, nil, err
		}
		refine = append(refine, f)
	}
	var eq map[string]string
	for _, f := range filters {
		field, value, ok := strings.Cut(f, ":")
		if !ok || field == "" {
			return nil, nil, fmt.Errorf("filter must be field:value, got %q", f)
		}
		if eq == nil {
			eq = make(map[string]string)
		}
		eq[field] = value
	}
	return refine, eq, nil
}

func runSearch() {
	searchArgs := argsReorder(os.Args[2:])
	configPath := configPathFromArgs(searchArgs, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	_ = fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the local store and index directly)")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", perPageDefaultFromConfig(configPath), "results per page")
	take := fs.Int("take", 0, "cap on engine hits counted for refined totals (0 = all)")
	raw := fs.Bool("raw", false, "print engine hits instead of stored records")
	outputFormat := fs.String("output", "text", "output format: text or json")
	var where, filters stringList
	fs.Var(&where, "where", "local refinement column:op:value, e.g. id:<:11 (repeatable)")
	fs.Var(&filters, "filter", "engine equality filter field:value (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	req := searchRequest{Term: buildSearchQuery(fs.Args()), Page: *page, PerPage: *perPage, Take: *take, Raw: *raw}
	if req.Term == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	if req.Take < 0 {
		fail("-take must not be negative")
	}
	var err error
	if req.Where, req.Filters, err = parseSearchFilters(where, filters); err != nil {
		fail("Invalid filter: %v", err)
	}
	format := cli.ParseFormat(*outputFormat)

	if *serverURL != "" {
		// The server holds the index open; going through it avoids lock conflicts.
		if err := searchViaHTTP(*serverURL, req, format); err != nil {
			fail("Search failed: %v", err)
		}
		return
	}

	_, logger, components := setup(configPath)
	defer components.Close()
	defer logger.Sync()
	if err := searchDirect(context.Background(), components.Searcher, req, format); err != nil {
		fail("Search failed: %v", err)
	}
}

func searchDirect(ctx context.Context, s *search.Searcher, req searchRequest, format cli.OutputFormat) error {
	b := s.Query(req.Term).Refine(search.WhereAll(req.Where...)).Take(req.Take)
	for field, value := range req.Filters {
		b = b.Where(field, value)
	}
	if req.Raw {
		page, err := b.PaginateRaw(ctx, req.Page, req.PerPage)
		if err != nil {
			return err
		}
		return cli.WriteRawPage(os.Stdout, page, format)
	}
	page, err := b.Paginate(ctx, req.Page, req.PerPage)
	if err != nil {
		return err
	}
	return cli.WritePage(os.Stdout, page, format)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	_, logger, components := setup(*configPath)
	defer components.Close()
	defer logger.Sync()
	ctx := context.Background()

	if fs.NArg() == 0 {
		report, err := components.Indexer.Import(ctx)
		if err != nil {
			fail("Import failed: %v", err)
		}
		_ = cli.WriteValue(os.Stdout, report, cli.ParseFormat(*outputFormat), func(w io.Writer) {
			fmt.Fprintf(w, "Imported %d record(s) into %q in %d batch(es) (%s)\n",
				report.Records, report.Index, report.Batches, report.Duration.Round(time.Millisecond))
		})
		return
	}

	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fail("Failed to stat path: %v", err)
		}
		if info.IsDir() {
			n, err := components.Indexer.ImportDirectory(ctx, path)
			if err != nil {
				fail("Importing directory failed: %v", err)
			}
			fmt.Printf("Imported %d file(s) from %s\n", n, path)
			continue
		}
		n, err := components.Indexer.ImportFile(ctx, path)
		if err != nil {
			fail("Importing file failed: %v", err)
		}
		fmt.Printf("Imported %d record(s) from %s\n", n, path)
	}
}

func runFlush() {
	fs := flag.NewFlagSet("flush", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath)
	defer components.Close()
	defer logger.Sync()
	if err := components.Indexer.Flush(context.Background()); err != nil {
		fail("Flush failed: %v", err)
	}
	fmt.Printf("Flushed index %q\n", cfg.Engine.Index)
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	id := fs.Int64("id", 0, "record ID to update (0 = create, or update by -source)")
	title := fs.String("title", "", "record title")
	source := fs.String("source", "", "external source key; an existing record with this key is updated")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	input := &models.RecordInput{ID: *id, Title: *title, Source: *source, Content: strings.Join(fs.Args(), " ")}
	if err := input.Validate(); err != nil {
		fmt.Println("Usage: sokuin add [-title t] [-source key] [-id n] <content>")
		os.Exit(1)
	}

	_, logger, components := setup(*configPath)
	defer components.Close()
	defer logger.Sync()
	r, err := components.Indexer.Save(context.Background(), input)
	if err != nil {
		fail("Save failed: %v", err)
	}
	_ = cli.WriteValue(os.Stdout, r, cli.ParseFormat(*outputFormat), func(w io.Writer) {
		fmt.Fprintf(w, "Record saved: %d\n", r.ID)
	})
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: sokuin delete [flags] <record-id>")
		os.Exit(1)
	}
	id, err := parseRecordID(fs.Arg(0))
	if err != nil {
		fail("%v", err)
	}

	_, logger, components := setup(*configPath)
	defer components.Close()
	defer logger.Sync()
	if err := components.Indexer.Delete(context.Background(), id); err != nil {
		fail("Deletion failed: %v", err)
	}
	fmt.Printf("Record deleted: %d\n", id)
}

func parseRecordID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscan(s, &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func printUsage() {
	fmt.Println(`sokuin - search engine sync and paginated search over a local record store

Usage:
  sokuin server [flags]              Start the HTTP server
  sokuin search [flags] <query>      Search records, one page at a time
  sokuin import [flags] [path ...]   Import all records into the index, or load files/directories
  sokuin flush [flags]               Remove every record from the index
  sokuin add [flags] <content>       Create or update a record
  sokuin delete [flags] <id>         Delete a record
  sokuin status [flags]              Show storage/engine/index status
  sokuin watch <add|remove|list>     Manage watched directories
  sokuin version                     Show version
  sokuin help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/sokuin/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for direct mode; also used for the default page size)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search directly.
  --page int         Page number (default: 1)
  --per-page int     Results per page (default from config, or 15)
  --where string     Local refinement column:op:value (repeatable)
  --filter string    Engine equality filter field:value (repeatable)
  --take int         Cap on engine hits considered for refined totals
  --raw              Print engine hits instead of stored records
  --output string    Output format: text or json (default: text)

Add Flags:
  --title string     Record title
  --source string    External source key (upsert)
  --id int           Record to update

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Environment:
  SOKUIN_* variables override the config file (e.g. SOKUIN_ENGINE=redis, SOKUIN_PER_PAGE=25).

Examples:
  sokuin server
  sokuin import                          # sync every stored record to the engine
  sokuin import ./users.jsonl ./docs
  sokuin search laravel
  sokuin search -where id:<:11 laravel
  sokuin search --output json laravel
  sokuin add -title "Laravel Scout" "driver based full-text search"
  sokuin delete 42
  sokuin status --output json
  sokuin watch add /path/to/docs
  sokuin watch list`)
}
