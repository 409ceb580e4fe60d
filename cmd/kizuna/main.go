// Package main is the kizuna CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/cli"
	"github.com/hyperjump/kizuna/internal/config"
	"github.com/hyperjump/kizuna/internal/index"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/server"
	"github.com/hyperjump/kizuna/internal/watcher"
	"github.com/hyperjump/kizuna/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kizuna/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence if it exists. A missing default
// config yields the built-in defaults.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := config.Default()
			config.LoadDotEnv()
			config.ApplyEnv(cfg)
			return cfg, "", nil
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
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "recommend":
		err = runRecommend(args)
	case "import":
		err = runImport(args)
	case "delete":
		err = runDelete(args)
	case "status":
		err = runStatus(args)
	case "rebuild", "snapshot", "populate":
		err = runAdmin(command, args)
	case "version", "--version", "-v":
		fmt.Printf("kizuna version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

// setup loads config and builds a logger and the components.
func setup(ctx context.Context, configPath string, debug bool) (*config.Config, *zap.Logger, *Components, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, logger, components, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, components, err := setup(ctx, *configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	var w *watcher.Watcher
	if len(cfg.Import.Directories) > 0 {
		idx := components.Indexer
		w = watcher.New(cfg.Import.Directories, cfg.Import.Extensions,
			func(path string) {
				if _, err := idx.IndexFile(context.Background(), path); err != nil {
					logger.Warn("import file failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := idx.RemoveFile(context.Background(), path); err != nil {
					logger.Warn("remove imported file failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger.Named("watcher")),
		)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		go w.SyncExisting()
	}

	// Periodic snapshots of dirty classes. The loop has its own context so
	// its final snapshot runs only after intake has stopped.
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	snapshotsDone := make(chan error, 1)
	go func() { snapshotsDone <- components.Registry.Run(runCtx, cfg.Index.SnapshotInterval) }()

	srv := server.NewServer(
		components.Registry,
		components.Indexer,
		components.Engine,
		components.Storage,
		components.Embedder,
		&cfg.Server,
		logger.Named("server"),
		server.WithDiskPaths(cfg.Storage.DatabasePath, cfg.Storage.SnapshotDir),
		server.WithImportDirectories(cfg.Import.Directories),
	)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
		stop()
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	intake := []func(context.Context) error{srv.Stop}
	if w != nil {
		intake = append(intake, func(context.Context) error {
			w.Stop()
			return nil
		})
	}
	return shutdown(shutdownCtx, logger, stopRun, snapshotsDone, intake...)
}

// shutdown runs the intake stop functions in order, then ends the snapshot
// loop so its final image covers every write accepted before intake stopped.
func shutdown(ctx context.Context, logger *zap.Logger, stopRun context.CancelFunc, runDone <-chan error, intake ...func(context.Context) error) error {
	for _, stop := range intake {
		if err := stop(ctx); err != nil {
			logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	stopRun()
	if err := <-runDone; err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	return nil
}

func runRecommend(args []string) error {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	class := fs.String("class", "user", "entity class")
	topN := fs.Int("top-n", models.DefaultTopN, "number of recommendations")
	network := fs.String("network", "", "only recommend members of this network")
	text := fs.Bool("text", false, "treat the arguments as a free-text query instead of an id")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: kizuna recommend [flags] <id> | --text <query>")
	}

	var resp models.RecommendationResponse
	base := strings.TrimRight(*serverURL, "/") + "/api/v1/" + url.PathEscape(*class)
	if *text {
		q := models.TextQuery{Query: strings.Join(fs.Args(), " "), Limit: *topN, Network: *network}
		err = postJSON(base+"/recommend", q, &resp)
	} else {
		params := url.Values{}
		params.Set("top_n", strconv.Itoa(*topN))
		if *network != "" {
			params.Set("network_filter", *network)
		}
		err = postJSON(base+"/recommendations/"+url.PathEscape(fs.Arg(0))+"?"+params.Encode(), nil, &resp)
	}
	if err != nil {
		return err
	}
	return cli.WriteRecommendations(os.Stdout, &resp, format)
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = import directly)")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: kizuna import [flags] <file-or-directory>")
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}

	if *serverURL != "" {
		var out map[string]interface{}
		if err := postJSON(strings.TrimRight(*serverURL, "/")+"/api/v1/import", map[string]string{"path": path}, &out); err != nil {
			return err
		}
		return cli.WriteJSON(os.Stdout, out)
	}

	ctx := context.Background()
	_, logger, components, err := setup(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		n, err := components.Indexer.IndexDirectory(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d files from %s\n", n, path)
	} else {
		res, err := components.Indexer.IndexFile(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s as %s/%s\n", path, res.Class, res.ID)
	}
	return components.Registry.SnapshotAll(ctx)
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	class := fs.String("class", "user", "entity class")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: kizuna delete [flags] <id>")
	}
	u := strings.TrimRight(*serverURL, "/") + "/api/v1/" + url.PathEscape(*class) + "/profiles/" + url.PathEscape(fs.Arg(0))
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if err := doJSON(req, nil); err != nil {
		return err
	}
	fmt.Printf("Deleted %s/%s\n", *class, fs.Arg(0))
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read snapshots directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}

	var stats []index.Stats
	if *serverURL != "" {
		var resp struct {
			Indices []index.Stats `json:"indices"`
		}
		req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*serverURL, "/")+"/api/v1/stats", nil)
		if err != nil {
			return err
		}
		if err := doJSON(req, &resp); err != nil {
			return err
		}
		stats = resp.Indices
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()
		c := &Components{}
		if c.Persister, c.Registry, err = initializeIndices(context.Background(), cfg, nil, logger); err != nil {
			return err
		}
		defer c.Close()
		stats = c.Registry.Stats()
	}
	return cli.WriteStats(os.Stdout, stats, format)
}

// runAdmin triggers rebuild, snapshot or populate for one class on a running server.
func runAdmin(command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	class := fs.String("class", "user", "entity class")
	_ = fs.Parse(args)

	var out map[string]interface{}
	u := strings.TrimRight(*serverURL, "/") + "/api/v1/" + url.PathEscape(*class) + "/" + command
	if err := postJSON(u, nil, &out); err != nil {
		return err
	}
	return cli.WriteJSON(os.Stdout, out)
}

func postJSON(u string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(http.MethodPost, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

func doJSON(req *http.Request, out interface{}) error {
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`kizuna - profile matching over an embedding index

Usage:
  kizuna server [flags]                Start the HTTP server
  kizuna recommend [flags] <id>        Recommend profiles similar to <id>
  kizuna recommend --text [flags] <q>  Recommend profiles for a free-text query
  kizuna import [flags] <path>         Import a résumé file or directory
  kizuna delete [flags] <id>           Delete a profile
  kizuna status [flags]                Show per-class index stats
  kizuna rebuild|snapshot|populate     Maintain one class on a running server
  kizuna version                       Show version
  kizuna help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kizuna/config.yaml)
  --server string    Server URL (default: http://localhost:8080)
  --class string     Entity class (default: user)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Recommend Flags:
  --top-n int        Number of recommendations (default: 10)
  --network string   Only recommend members of this network
  --text             Treat the arguments as a free-text query

Examples:
  kizuna server
  kizuna recommend u-123
  kizuna recommend --network n-7 --output json u-123
  kizuna recommend --text --class resume "go engineer with postgres"
  kizuna import ~/cv
  kizuna import --server "" ./ada.pdf      # import without a running server
  kizuna rebuild --class user
  kizuna status --server ""                 # read snapshots directly`)
}
