package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/quincelang/quince/config"
	"github.com/quincelang/quince/pkg/quince/errors"
	"github.com/quincelang/quince/pkg/quince/exec"
	"github.com/quincelang/quince/pkg/quince/quince"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("quince", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configPath  = flags.String("config", "", "Path to config file")
		params      paramFlags
		noCache     = flags.Bool("no-cache", false, "Bypass the parse cache")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)
	flags.Var(&params, "p", "Component parameter as key=value (repeatable)")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showHelp {
		printUsage(stdout)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(stdout, "quince version %s\n", Version)
		return nil
	}

	if flags.NArg() < 1 {
		printUsage(stderr)
		return fmt.Errorf("a component file is required")
	}
	target := flags.Arg(0)

	opts := quince.Options{
		Logger: quince.WriterLogger(stderr),
	}

	// A config file is optional for one-shot rendering.
	if cfg, _, err := config.LoadWithPath(*configPath, getenv); err == nil {
		services, err := config.BuildServices(cfg)
		if err != nil {
			return err
		}
		opts.Root = cfg.Root
		opts.Services = services
		opts.MaxDepth = cfg.Runtime.MaxDepth
		opts.MaxSteps = cfg.Runtime.MaxSteps
		opts.ExprCacheSize = cfg.Cache.Expressions
		opts.CacheDisabled = cfg.Cache.Disabled
		if cfg.Session.TTL > 0 {
			opts.SessionTTL = cfg.Session.TTL
		}
	} else if *configPath != "" {
		// An explicitly named config that fails to load is an error; the
		// default search failing just means no config.
		return err
	}
	if *noCache {
		opts.CacheDisabled = true
	}
	if opts.Root == "" {
		opts.Root = filepath.Dir(target)
		target = filepath.Base(target)
	}

	engine, err := quince.New(opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	out, err := engine.Render(ctx, target, params.values, "")
	if err != nil {
		fmt.Fprintln(stderr, errors.AsQuince(err).PrettyString())
		return fmt.Errorf("render failed")
	}

	printResult(stdout, stderr, out)
	return nil
}

func printResult(stdout, stderr io.Writer, out *exec.Output) {
	if html := out.HTML(); html != "" {
		fmt.Fprint(stdout, html)
		if !strings.HasSuffix(html, "\n") {
			fmt.Fprintln(stdout)
		}
	}
	if out.Redirected() {
		fmt.Fprintf(stderr, "redirect: %s\n", out.RedirectTo)
	}
	if out.Flash != "" {
		fmt.Fprintf(stderr, "flash [%s]: %s\n", out.FlashType, out.Flash)
	}
}

// paramFlags collects repeated -p key=value flags.
type paramFlags struct {
	values map[string]any
}

func (p *paramFlags) String() string { return "" }

func (p *paramFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("parameter must be key=value, got %q", s)
	}
	if p.values == nil {
		p.values = make(map[string]any)
	}
	p.values[key] = value
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `quince - render Quince components

Usage:
  quince [flags] <component-file>

Flags:
  -config path    Path to config file (default: quince.yaml search)
  -p key=value    Component parameter (repeatable)
  -no-cache       Bypass the parse cache
  -version        Show version
  -help           Show this help

Examples:
  quince page.qml
  quince -p name=World -p count=3 greeting.qml
  quince -config app/quince.yaml app/index.qml
`)
}
