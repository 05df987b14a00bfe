package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/vanderheijden86/photocluster/internal/datasource"
	"github.com/vanderheijden86/photocluster/pkg/config"
	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/export"
	"github.com/vanderheijden86/photocluster/pkg/layout"
	"github.com/vanderheijden86/photocluster/pkg/loader"
	"github.com/vanderheijden86/photocluster/pkg/metrics"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
	"github.com/vanderheijden86/photocluster/pkg/stream"
	"github.com/vanderheijden86/photocluster/pkg/texture"
	"github.com/vanderheijden86/photocluster/pkg/ui"
	"github.com/vanderheijden86/photocluster/pkg/version"
	"github.com/vanderheijden86/photocluster/pkg/watcher"
)

// layoutFrame is the step interval of the animated layout.
const layoutFrame = 16 * time.Millisecond

// layoutUpdatesPerFrame is the number of layout updates per step.
const layoutUpdatesPerFrame = 10

type options struct {
	configPath  string
	dataset     string
	baseURL     string
	level       int
	clicks      []string
	out         string
	saveSession string
	watch       bool
	tui         bool
	noTUI       bool
	metricsAddr string
	timeout     time.Duration
}

func main() {
	var opts options
	var clicks string
	flag.StringVar(&opts.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/pcv/config.yaml)")
	flag.StringVar(&opts.dataset, "dataset", "", "Dataset: file, URL, sqlite:<db>#<name>, or a name from the config")
	flag.StringVar(&opts.baseURL, "base-url", "", "Base address for relative image URLs (overrides "+loader.APIURLEnvVar+")")
	flag.IntVar(&opts.level, "level", 0, "Initial cluster level")
	flag.StringVar(&clicks, "click", "", "Comma-separated node IDs to click, in order (headless)")
	flag.StringVar(&opts.out, "out", "", "Write a frame (.png or .svg) once loading settles")
	flag.StringVar(&opts.saveSession, "save-session", "", "Save the loaded dataset to the session store under this name")
	flag.BoolVar(&opts.watch, "watch", false, "Reload the dataset file when it changes")
	flag.BoolVar(&opts.tui, "tui", false, "Force the interactive terminal UI")
	flag.BoolVar(&opts.noTUI, "no-tui", false, "Never start the interactive terminal UI")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Headless limit for loading to settle")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	versionFlag := flag.Bool("version", false, "Show version")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help {
		fmt.Println("Usage: pcv [options]")
		fmt.Println("\nStreams photo textures for a clustered photo graph.")
		flag.PrintDefaults()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Printf("pcv %s\n", version.Version)
		os.Exit(0)
	}
	if *debugFlag {
		debug.SetEnabled(true)
	}
	if opts.tui && opts.noTUI {
		fmt.Fprintln(os.Stderr, "Error: --tui and --no-tui are mutually exclusive")
		os.Exit(2)
	}
	opts.clicks = parseClicks(clicks)

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		// Non-fatal: continue with defaults
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if debug.Enabled() {
		defer metrics.Report(os.Stderr)
	}

	location := cfg.ResolveDataset(opts.dataset)
	if location == "" {
		location = "."
	}
	ds, src, err := datasource.Load(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to load dataset from %s: %w", location, err)
	}
	fmt.Fprintf(os.Stderr, "Loaded %d levels, %d nodes from %s\n", len(ds.Levels), ds.NodeCount(), src)

	if opts.saveSession != "" {
		if err := saveSession(ctx, opts.saveSession, ds); err != nil {
			return err
		}
	}

	if opts.metricsAddr != "" {
		metrics.SetEnabled(true)
		serveMetrics(opts.metricsAddr)
	}

	loop := sched.NewLoop(cfg.Texture.MaxConcurrentDecodes)
	defer loop.Close()

	renderOpts, err := cfg.RenderOptions()
	if err != nil {
		return err
	}
	renderer := export.NewRenderer(renderOpts)

	interactive := useTUI(opts, term.IsTerminal(int(os.Stdout.Fd())))
	var host *ui.Host
	var target stream.Renderer = renderer
	if interactive {
		host = ui.NewHost(renderer)
		target = host
	}

	visualCfg, err := cfg.VisualOptions()
	if err != nil {
		return err
	}
	camCfg := cfg.CameraOptions()
	st := stream.New(newFetcher(cfg, src), target, loop, stream.Options{
		BaseURL:           baseURL(opts.baseURL, cfg.BaseURL),
		Texture:           cfg.TextureOptions(),
		PreloadHighRes:    cfg.Queue.PreloadHighRes,
		HighlightPriority: cfg.Queue.HighlightPriority,
		Visual:            &visualCfg,
		Camera:            &camCfg,
	})
	defer st.Close()
	renderer.SetScene(st)

	layoutDone, err := show(ctx, loop, st, target, ds, opts.level, cfg.LayoutOptions())
	if err != nil {
		return err
	}

	if opts.watch {
		reloader, err := watchDataset(src, loop, st, ds, cfg.LayoutOptions())
		if err != nil {
			return err
		}
		if err := reloader.Start(); err != nil {
			return fmt.Errorf("failed to watch %s: %w", src.Location, err)
		}
		defer reloader.Stop()
	}

	if interactive {
		m := ui.NewModel(st, host, ui.Options{
			Exec:      func(fn func()) { _ = loop.Do(ctx, fn) },
			FramePath: framePath(opts.out, cfg.Render.Format),
			Palette:   visualCfg.Palette,
		})
		return runTUIProgram(m, host)
	}
	return runHeadless(ctx, opts, cfg, loop, st, renderer, layoutDone)
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// baseURL applies precedence: flag, then PC_API_URL, then config.
func baseURL(flagValue, configured string) string {
	if flagValue != "" {
		return flagValue
	}
	return loader.BaseURL(configured)
}

func parseClicks(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// useTUI decides between the terminal UI and a headless run.
func useTUI(opts options, stdoutIsTerminal bool) bool {
	switch {
	case opts.tui:
		return true
	case opts.noTUI:
		return false
	case len(opts.clicks) > 0 || opts.out != "":
		return false
	default:
		return stdoutIsTerminal
	}
}

func framePath(out, format string) string {
	if out != "" {
		return out
	}
	return "pcv-frame." + format
}

// newFetcher loads http(s) images over the network and everything else
// from disk, relative to the dataset file when there is one.
func newFetcher(cfg config.Config, src datasource.Source) texture.Fetcher {
	httpFetcher := texture.NewHTTPFetcher(cfg.Texture.FetchTimeout, cfg.Texture.UserAgent)
	var root string
	if src.Type == datasource.SourceTypeFile {
		root = filepath.Dir(src.Location)
	}
	return texture.NewSharedFetcher(texture.MuxFetcher{
		HTTP: httpFetcher,
		File: texture.FileFetcher{Root: root},
	})
}

func saveSession(ctx context.Context, name string, ds *model.Dataset) error {
	path := config.SessionStorePath()
	if path == "" {
		return errors.New("cannot determine data directory for the session store")
	}
	store, err := datasource.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, name, ds); err != nil {
		return fmt.Errorf("failed to save session %q: %w", name, err)
	}
	fmt.Fprintf(os.Stderr, "Saved session %q to %s\n", name, path)
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Warning: metrics server: %v\n", err)
		}
	}()
}

// show places unplaced nodes and hands the dataset to the streamer. The
// visible level is laid out incrementally on the loop and framed again
// once it stops moving; the returned channel closes at that point.
func show(ctx context.Context, loop *sched.Loop, st *stream.Streamer, r stream.Renderer,
	ds *model.Dataset, level int, layoutOpts layout.Options) (<-chan struct{}, error) {
	if _, err := ds.Level(level); err != nil {
		return nil, fmt.Errorf("--level %d: %w", level, err)
	}
	for i := range ds.Levels {
		if i != level {
			layout.Apply(&ds.Levels[i], layoutOpts)
		}
	}

	done := make(chan struct{})
	err := loop.Do(ctx, func() {
		st.SetDataset(ds)
		if level != 0 {
			_ = st.SetLevel(level)
		}
		sim := layout.NewSimulation(&ds.Levels[level], layoutOpts)
		if sim == nil {
			close(done)
			return
		}
		sim.Animate(loop, layoutFrame, layoutUpdatesPerFrame, r.RequestRerender, func() {
			st.Reframe()
			close(done)
		})
	})
	return done, err
}

func watchDataset(src datasource.Source, loop *sched.Loop, st *stream.Streamer,
	current *model.Dataset, layoutOpts layout.Options) (*watcher.Reloader, error) {
	if src.Type != datasource.SourceTypeFile {
		return nil, fmt.Errorf("--watch needs a dataset file, got %s", src.Type)
	}
	load := func() (*model.Dataset, error) {
		ds, err := loader.LoadFile(src.Location)
		if err != nil {
			return nil, err
		}
		for i := range ds.Levels {
			layout.Apply(&ds.Levels[i], layoutOpts)
		}
		return ds, nil
	}
	apply := func(old, next *model.Dataset) {
		diff := datasource.CompareDatasets(old, next)
		if !diff.HasChanges() {
			debug.Log("pcv: %s rewritten without changes", src.Location)
			return
		}
		fmt.Fprintf(os.Stderr, "Reloaded %s: %s\n", src.Location, diff.Summary())
		st.SetDataset(next)
	}
	onError := func(err error) {
		fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", src.Location, err)
	}
	return watcher.NewReloader(src.Location, loop, current, load, apply, onError)
}

// runHeadless clicks the requested nodes, waits for textures and camera to
// settle, and writes the frame.
func runHeadless(ctx context.Context, opts options, cfg config.Config, loop *sched.Loop,
	st *stream.Streamer, r *export.Renderer, layoutDone <-chan struct{}) error {
	wait, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	select {
	case <-layoutDone:
	case <-wait.Done():
		return fmt.Errorf("waiting for layout: %w", wait.Err())
	}
	// The camera frames the dataset once the settle delay has passed.
	if err := sleep(wait, cfg.Camera.SettleDelay+cfg.Camera.Animation); err != nil {
		return err
	}

	for _, id := range opts.clicks {
		var clickErr error
		if err := loop.Do(wait, func() { clickErr = st.ClickID(id) }); err != nil {
			return err
		}
		if clickErr != nil {
			return clickErr
		}
	}
	if len(opts.clicks) > 0 {
		if err := sleep(wait, cfg.Camera.Animation); err != nil {
			return err
		}
	}

	if err := st.WaitIdle(wait); err != nil {
		return fmt.Errorf("waiting for textures: %w", err)
	}

	var stats stream.Stats
	_ = loop.Do(wait, func() { stats = st.Stats() })
	fmt.Fprintf(os.Stderr, "Level %d/%d: %d nodes, %d low-res, %d high-res, %d failed, %s\n",
		stats.Level+1, stats.Levels, stats.Nodes, stats.Cache.LowEntries, stats.Cache.HighEntries,
		stats.Cache.Failures, stats.Highlight)

	if opts.out != "" {
		var saveErr error
		if err := loop.Do(wait, func() { saveErr = r.SaveFrame(opts.out, "") }); err != nil {
			return err
		}
		if saveErr != nil {
			return saveErr
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", opts.out)
	}

	if opts.watch {
		<-ctx.Done()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runTUIProgram(m ui.Model, host *ui.Host) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	host.Attach(p)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	_, err := p.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted)) {
		return nil
	}
	return err
}
