package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auvlog/lcm2smat/internal/convert"
	"github.com/auvlog/lcm2smat/smat"
)

func init() {
	fl := rootCmd.Flags()
	fl.StringP("output", "o", "", "output file (default: derived from the log name)")
	fl.BoolP("pickle", "k", false, "write a Python pickle instead of a MAT-file")
	must(viper.BindPFlag("output", fl.Lookup("output")))
	must(viper.BindPFlag("pickle", fl.Lookup("pickle")))
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	format := smat.FormatMat
	if viper.GetBool("pickle") {
		format = smat.FormatPickle
	}
	out := viper.GetString("output")
	if out == "" {
		out = defaultOutPath(args[0], format)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = convert.Run(ctx, convert.Options{
		LogPath:   args[0],
		OutPath:   out,
		Format:    format,
		Channels:  viper.GetString("channels"),
		Ignore:    viper.GetString("ignore"),
		TypePaths: typePaths(),
	}, logger)
	return err
}

// defaultOutPath derives the archive name from the log name: '.' and '-' in
// the basename become '_', plus the format extension, in the log's
// directory.
func defaultOutPath(logPath string, format smat.Format) string {
	base := filepath.Base(logPath)
	base = strings.ReplaceAll(base, ".", "_")
	base = strings.ReplaceAll(base, "-", "_")
	return filepath.Join(filepath.Dir(logPath), base+format.Ext())
}
