package cli

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auvlog/lcm2smat/internal/convert"
	"github.com/auvlog/lcm2smat/lcmlog"
	"github.com/auvlog/lcm2smat/lcmtype"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <logfile>",
	Short: "Pretty-print decoded messages from a log",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	reg := lcmtype.NewRegistry()
	for _, p := range typePaths() {
		if _, err := reg.LoadPath(p); err != nil {
			return err
		}
	}
	if err := reg.Resolve(); err != nil {
		return err
	}

	f, err := lcmlog.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	filter := convert.Options{
		Channels: viper.GetString("channels"),
		Ignore:   viper.GetString("ignore"),
	}

	out := cmd.OutOrStdout()
	// Redirected output should stay free of ANSI escapes.
	pp.ColoringEnabled = false

	unknown := make(map[string]bool)
	for {
		ev, err := f.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !filter.WantChannel(ev.Channel) || unknown[ev.Channel] {
			continue
		}

		if len(ev.Data) < 8 {
			fmt.Fprintf(out, "--- #%d %s utime=%d: %d byte message, no fingerprint\n",
				ev.EventNum, ev.Channel, ev.Timestamp, len(ev.Data))
			continue
		}
		fp := binary.BigEndian.Uint64(ev.Data)
		schema, ok := reg.LookupFingerprint(fp)
		if !ok {
			unknown[ev.Channel] = true
			fmt.Fprintf(out, "--- #%d %s utime=%d: no schema for 0x%016x, muting channel\n",
				ev.EventNum, ev.Channel, ev.Timestamp, fp)
			continue
		}

		msg, err := lcmtype.Decode(schema, ev.Data)
		if err != nil {
			fmt.Fprintf(out, "--- #%d %s utime=%d: %v\n", ev.EventNum, ev.Channel, ev.Timestamp, err)
			continue
		}
		fmt.Fprintf(out, "--- #%d %s utime=%d %s\n", ev.EventNum, ev.Channel, ev.Timestamp, schema.QualifiedName())
		if _, err := pp.Fprintln(out, msg); err != nil {
			return err
		}
	}
}
