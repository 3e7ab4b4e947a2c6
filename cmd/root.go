// Package cmd is the bgstrip command line.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/chaos-io/bgstrip/config"
	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configFile string
	verbose    bool
	jsonOutput bool

	// appConfig is loaded in PersistentPreRunE, before any subcommand runs.
	appConfig *config.Config
)

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"input":        "input.dir",
	"output":       "output.dir",
	"workers":      "pipeline.workers",
	"max-depth":    "pipeline.max_depth",
	"backend":      "inference.backend",
	"timeout":      "inference.timeout",
	"birefnet-url": "birefnet.base_url",
	"schedule":     "watch.schedule",
	"debounce":     "watch.debounce",
	"addr":         "server.addr",
}

var rootCmd = &cobra.Command{
	Use:   "bgstrip",
	Short: "bgstrip - batch background removal for image frames",
	Long: `bgstrip removes the background of every image in an input directory and
writes the results as PNG files with an alpha channel.

Input files are validated before decoding: symlinks, files outside the
input directory, oversized files and images whose declared dimensions
exceed the pixel budget are rejected without being decoded.

Examples:
  bgstrip run                          # input_frames -> frames
  bgstrip run -i shots -o cutouts -v   # custom directories, debug logs
  bgstrip watch --schedule "@every 10m"
  bgstrip serve --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(verbose, jsonOutput); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}

		v, err := config.NewViper(configFile)
		if err != nil {
			return err
		}
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		appConfig, err = config.Load(v)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./bgstrip.toml or $HOME/.config/bgstrip/bgstrip.toml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&jsonOutput, "json", false, "log as JSON and print the report as JSON")

	flags.StringP("input", "i", "", "input directory (default input_frames)")
	flags.StringP("output", "o", "", "output directory (default frames)")
	flags.Int("workers", 0, "concurrent decode workers (default one per CPU)")
	flags.Int("max-depth", 0, "subdirectory levels to walk below the input directory")
	flags.String("backend", "", "inference backend: chroma, opaque or birefnet (default chroma)")
	flags.Duration("timeout", 0, "per-image inference timeout (default 2m)")
	flags.String("birefnet-url", "", "ComfyUI server running the BiRefNet workflow")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// bindFlags binds the persistent flags and the subcommand's own flags that
// have a configuration key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = errors.Wrapf(bindErr, "bind flag --%s", f.Name)
		}
	})
	return err
}

// Execute runs the root command. Fatal errors are printed with their
// hints; the return value is the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hints := errors.GetAllHints(err); len(hints) > 0 {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", strings.Join(hints, "\n      "))
		}
		return 1
	}
	return 0
}
