package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/passport-rembg/internal/config"
	"github.com/ironsheep/passport-rembg/internal/logging"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and --help before any flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("passport-rembg %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fs, _ := newFlagSet()
			printUsage(fs)
			return
		}
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "passport-rembg: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	service bool
	local   bool

	crop        string
	aspect      string
	background  string
	transparent bool
	border      int
	upscale     float64
}

// newFlagSet returns the command-line flags and the options they fill in on
// Parse. The config flags (port, data-dir, debug) are read by config.Load.
func newFlagSet() (*pflag.FlagSet, *options) {
	opts := &options{}
	fs := pflag.NewFlagSet("passport-rembg", pflag.ContinueOnError)

	fs.BoolVar(&opts.service, "service", false, "run the background-removal service")
	fs.Int("port", config.DefaultPort, "service port (env "+config.PortEnv+")")
	fs.String("data-dir", config.AppDataDir(), "directory for models, lock and diagnostic files")
	fs.Bool("debug", false, "enable debug logging")

	fs.BoolVar(&opts.local, "local", false, "remove the background in this process without the service")
	fs.StringVar(&opts.crop, "crop", "", "crop box x1,y1,x2,y2 applied before removal")
	fs.StringVar(&opts.aspect, "aspect", "", "centre-crop to a W:H ratio such as 3:4 before removal")
	fs.StringVar(&opts.background, "bg", "#FFFFFF", "background colour as hex")
	fs.BoolVar(&opts.transparent, "transparent", false, "keep a transparent background")
	fs.IntVar(&opts.border, "border", 0, "border width in pixels, half white and half black")
	fs.Float64Var(&opts.upscale, "upscale", 1, "enlarge the result by this factor (Lanczos)")

	return fs, opts
}

func printUsage(fs *pflag.FlagSet) {
	fmt.Println("passport-rembg - passport photo background removal")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  passport-rembg [options] <input> <output.png>")
	fmt.Println("  passport-rembg --service [--port n]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Print(fs.FlagUsages())
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  " + config.PortEnv + "=<n>     Service port")
	fmt.Println("  PASSPORT_REMBG_LOG_MODE=debug  Enable debug logging")
	fmt.Println()
	fmt.Println("The first client start launches the service in the background; later")
	fmt.Println("runs reuse it. Without a reachable service the models run in-process.")
}

func run(args []string) error {
	fs, opts := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Debug("passport-rembg starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit),
		zap.String("data_dir", cfg.DataDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.service {
		return runService(ctx, cfg, logger)
	}

	if fs.NArg() != 2 {
		printUsage(fs)
		return fmt.Errorf("expected <input> and <output>, got %d arguments", fs.NArg())
	}
	return runClient(ctx, cfg, logger, opts, fs.Arg(0), fs.Arg(1))
}
