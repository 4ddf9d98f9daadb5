package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/photo-derive/internal/batch"
	"github.com/fpang/photo-derive/internal/bundle"
	"github.com/fpang/photo-derive/internal/config"
	"github.com/fpang/photo-derive/internal/derive"
	"github.com/fpang/photo-derive/internal/filehandler"
	"github.com/fpang/photo-derive/internal/logging"
	"github.com/fpang/photo-derive/internal/saliency"
	"github.com/fpang/photo-derive/internal/store"
	"github.com/fpang/photo-derive/internal/watch"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// CLI flags
var (
	configFlag      string
	longestSideFlag int
	concurrencyFlag int
	cropFlag        bool
	bundleFlag      string
	watchFlag       string
	recursiveFlag   bool
)

// rootCmd is the main Cobra command for the photo-derive CLI.
var rootCmd = &cobra.Command{
	Use:   "photo-derive [flags] <file|directory|s3://bucket/key>...",
	Short: "Derive web-ready variants from photographs",
	Long: `Photo Derive produces, for every input photo, a set of derived images:

  name-2048.ext    longest side constrained to 2048px, same format as the source
  name-2048-s.ext  square canvas, photo centred on a blurred copy of itself (JPEG)
  name-2048-c.ext  saliency crop, 1:1 for landscape and 4:5 for portrait (JPEG)

Outputs that already exist are skipped, so a run can be repeated safely.
Directories expand to the images they contain. Inputs and outputs may live
in S3 (s3://bucket/key).

Examples:
  photo-derive IMG_0001.jpg IMG_0002.jpg
  photo-derive --recursive ./vacation
  photo-derive --crop=false --longest-side 1080 ./photos
  photo-derive --bundle web.zip ./photos
  photo-derive --watch ./inbox
  photo-derive s3://my-bucket/raw/IMG_0001.jpg`,
	Args: validateArgs,
	Run:  runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "YAML configuration file")
	rootCmd.Flags().IntVarP(&longestSideFlag, "longest-side", "l", derive.DefaultLongestSide, "Target longest side in pixels")
	rootCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "j", 0, "Maximum concurrent tasks (0 = number of CPUs)")
	rootCmd.Flags().BoolVar(&cropFlag, "crop", true, "Produce the saliency crop variant")
	rootCmd.Flags().StringVar(&bundleFlag, "bundle", "", "Also pack every output of the batch into this ZIP")
	rootCmd.Flags().StringVarP(&watchFlag, "watch", "w", "", "After the batch, keep processing new photos arriving in this directory")
	rootCmd.Flags().BoolVarP(&recursiveFlag, "recursive", "r", false, "Descend into subdirectories of directory arguments")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// validateArgs requires at least one input unless watch mode is on.
func validateArgs(cmd *cobra.Command, args []string) error {
	if watchFlag != "" {
		return nil
	}
	return cobra.MinimumNArgs(1)(cmd, args)
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	runID := uuid.NewString()
	log.Logger = log.With().Str("run_id", runID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	variants := derive.Variants(cfg.DeriveOptions(), saliency.NewSmart())
	suffixes := derive.Suffixes(variants)

	st := store.NewRouter(store.Local{}, func() (store.Store, error) {
		s3Store, err := store.NewS3FromDefaultConfig(ctx, cfg.S3.Region, cfg.S3.TagObjects)
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	})

	orchestrator := batch.New(st, variants,
		batch.WithLimiter(batch.NewLimiter(cfg.Workers())),
		batch.WithReporter(batch.ConsoleReporter{Out: os.Stdout}),
	)

	logRun(cfg, suffixes, args)

	scan := filehandler.ScanOptions{MaxDepth: 1, DerivedSuffixes: suffixes}
	if recursiveFlag {
		scan.MaxDepth = 0
	}
	inputs, err := filehandler.ExpandInputs(args, scan)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to expand inputs")
	}
	if len(inputs) == 0 && watchFlag == "" {
		log.Fatal().Strs("args", args).Msg("no supported images found")
	}

	var summary batch.Summary
	if len(inputs) > 0 {
		summary = orchestrator.Run(ctx, inputs)
		printSummary(os.Stdout, summary)
	}

	ok := summary.OK()

	if bundleFlag != "" {
		res, err := bundle.Write(ctx, st, bundleFlag, summary.Outputs)
		if err != nil {
			log.Error().Err(err).Str("path", bundleFlag).Msg("failed to write bundle")
			ok = false
		} else {
			fmt.Printf("Bundle: %s (%d files, %d bytes)\n", res.Path, res.Entries, res.Size)
		}
	}

	if watchFlag != "" {
		if !runWatch(ctx, orchestrator, suffixes) {
			ok = false
		}
	}

	if !ok {
		stop()
		os.Exit(1)
	}
}

// resolveConfig layers defaults, the optional config file and explicitly
// set flags, in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFlag != "" {
		loaded, err := config.Load(configFlag)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("longest-side") {
		cfg.LongestSide = longestSideFlag
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrencyFlag
	}
	if flags.Changed("crop") {
		cfg.Crop = cropFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func logRun(cfg *config.Config, suffixes, args []string) {
	rl := logging.NewRunLogger().
		Version(version).
		Variants(suffixes).
		Store("local", "filesystem").
		Feature("crop", cfg.Crop).
		Feature("preserve_metadata", cfg.PreserveMetadata).
		Feature("bundle", bundleFlag != "").
		Feature("watch", watchFlag != "").
		Feature("recursive", recursiveFlag).
		Config("longest_side", strconv.Itoa(cfg.LongestSide)).
		Config("concurrency", strconv.Itoa(cfg.Workers())).
		Config("blur_sigma", strconv.FormatFloat(cfg.BlurSigma, 'g', -1, 64)).
		Config("quality", fmt.Sprintf("resize=%d square=%d crop=%d", cfg.Quality.Resize, cfg.Quality.Square, cfg.Quality.Crop))

	for _, arg := range args {
		if filehandler.IsRemote(arg) {
			region := cfg.S3.Region
			if region == "" {
				region = "default"
			}
			rl.Store("s3", "region="+region+" tag_objects="+strconv.FormatBool(cfg.S3.TagObjects))
			break
		}
	}
	if configFlag != "" {
		rl.Config("config_file", configFlag)
	}
	rl.Log()
}

// runWatch processes new photos in watchFlag until the context is
// cancelled. It reports whether every watched task succeeded.
func runWatch(ctx context.Context, orchestrator *batch.Orchestrator, suffixes []string) bool {
	w, err := watch.New(watchFlag, suffixes)
	if err != nil {
		log.Fatal().Err(err).Str("dir", watchFlag).Msg("failed to start watcher")
	}

	fmt.Printf("Watching %s for new photos (Ctrl+C to stop)\n", watchFlag)

	var mu sync.Mutex
	var total batch.Summary
	err = w.Run(ctx, func(ctx context.Context, path string) {
		s := orchestrator.Run(ctx, []string{path})
		mu.Lock()
		total.Merge(s)
		mu.Unlock()
	})
	if err != nil {
		log.Error().Err(err).Str("dir", watchFlag).Msg("watcher stopped")
		return false
	}

	fmt.Println()
	fmt.Println("Watch mode stopped.")
	printSummary(os.Stdout, total)
	return total.OK()
}

// printSummary writes the run counts and one line per failure.
func printSummary(w io.Writer, s batch.Summary) {
	fmt.Fprintln(w, strings.Repeat("-", 44))
	fmt.Fprintf(w, "Written: %d  Skipped: %d  Failed: %d\n", s.Written, s.Skipped, s.Failed)
	if len(s.Errors) == 0 {
		return
	}
	fmt.Fprintln(w, "Failures:")
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  %s [%s]: %v\n", e.Source, e.Variant, e.Err)
	}
}
