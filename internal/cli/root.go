// Package cli wires the lcm2smat command tree: the root convert command plus
// the dump and types inspection subcommands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "lcm2smat <logfile>",
	Short: "Convert LCM event logs to MATLAB or Python archives",
	Long: `lcm2smat converts an LCM event log into a structured archive for offline
analysis: a MATLAB MAT-file (default) or a Python pickle (--pickle).

Message definitions (.lcm files) are looked up on the --lcmtypes path and the
LCMPATH environment variable. Channels whose type is not found there are
skipped with a warning; everything else becomes one array per field, one row
per message, alongside a timestamps vector.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConvert,
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lcm2smat: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSliceP("lcmtypes", "l", nil, "directories or .lcm files with type definitions")
	pf.StringP("channels", "c", "", "convert only channels matching this glob")
	pf.StringP("ignore", "i", "", "skip channels matching this glob (wins over --channels)")
	pf.BoolP("verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("LCM2SMAT")
	viper.AutomaticEnv()
	must(viper.BindPFlag("lcmtypes", pf.Lookup("lcmtypes")))
	must(viper.BindPFlag("channels", pf.Lookup("channels")))
	must(viper.BindPFlag("ignore", pf.Lookup("ignore")))
	must(viper.BindPFlag("verbose", pf.Lookup("verbose")))
	// The type search path variable predates this tool; keep its plain name.
	must(viper.BindEnv("lcmpath", "LCMPATH"))

	rootCmd.AddCommand(dumpCmd, typesCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// typePaths merges --lcmtypes entries with LCMPATH. Each entry is itself a
// PATH-style list.
func typePaths() []string {
	paths := viper.GetStringSlice("lcmtypes")
	if env := viper.GetString("lcmpath"); env != "" {
		paths = append(paths, env)
	}
	return paths
}

// newLogger builds the stderr console logger shared by all commands: Info by
// default, Debug with --verbose.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !viper.GetBool("verbose") {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}
