// Package convert drives the log-to-archive pipeline: read events, look up
// schemas, decode, accumulate, write.
package convert

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/auvlog/lcm2smat/lcmlog"
	"github.com/auvlog/lcm2smat/lcmtype"
	"github.com/auvlog/lcm2smat/smat"
)

// progressEvery is the record interval between progress log lines.
const progressEvery = 5000

// Options selects the input, the output and the channel subset for one run.
type Options struct {
	LogPath string
	OutPath string
	Format  smat.Format

	// Channels keeps only matching channels when non-empty; Ignore drops
	// matching channels and wins over Channels. Both are path.Match globs; a
	// pattern without metacharacters matches exactly.
	Channels string
	Ignore   string

	// TypePaths are PATH-style lists of .lcm files and directories, searched
	// in order.
	TypePaths []string
}

// WantChannel applies the include/ignore filters to a channel name.
func (o *Options) WantChannel(name string) bool {
	if o.Ignore != "" && channelMatch(o.Ignore, name) {
		return false
	}
	if o.Channels == "" {
		return true
	}
	return channelMatch(o.Channels, name)
}

// channelMatch treats pattern as a path.Match glob; a malformed pattern
// falls back to literal comparison.
func channelMatch(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	if err != nil {
		return pattern == name
	}
	return ok
}

// Run executes one conversion. Read failures, schema conflicts and write
// failures abort with an error and leave no output file; unknown types,
// undecodable records and unrepresentable fields are skipped, logged and
// counted in the returned Stats.
func Run(ctx context.Context, opts Options, log *zap.Logger) (*Stats, error) {
	stats := newStats()

	reg := lcmtype.NewRegistry()
	for _, p := range opts.TypePaths {
		n, err := reg.LoadPath(p)
		stats.TypesLoaded += n
		if err != nil {
			return nil, err
		}
	}
	if err := reg.Resolve(); err != nil {
		return nil, err
	}

	f, err := lcmlog.Open(opts.LogPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	log.Info("converting log",
		zap.String("log", opts.LogPath),
		zap.String("out", opts.OutPath),
		zap.Stringer("format", opts.Format),
		zap.Int("types", stats.TypesLoaded))

	acc := smat.NewAccumulator()
	decodeWarned := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		stats.Events++

		if stats.Events == 1 && reg.Len() == 0 {
			return nil, fmt.Errorf("convert: log has events but no type definitions were loaded, set --lcmtypes or LCMPATH")
		}
		if stats.Events%progressEvery == 0 {
			logProgress(log, f, stats)
		}

		if !opts.WantChannel(ev.Channel) {
			stats.Filtered++
			continue
		}
		if _, muted := stats.UnknownType[ev.Channel]; muted {
			stats.UnknownType[ev.Channel]++
			continue
		}

		if len(ev.Data) < 8 {
			recordDecodeError(log, stats, decodeWarned, ev.Channel,
				fmt.Errorf("%d byte message, no fingerprint", len(ev.Data)))
			continue
		}
		fp := binary.BigEndian.Uint64(ev.Data)
		schema, ok := reg.LookupFingerprint(fp)
		if !ok {
			stats.UnknownType[ev.Channel] = 1
			log.Warn("no schema for channel, muting it",
				zap.String("channel", ev.Channel),
				zap.String("fingerprint", fmt.Sprintf("0x%016x", fp)))
			continue
		}

		msg, err := lcmtype.Decode(schema, ev.Data)
		if err != nil {
			recordDecodeError(log, stats, decodeWarned, ev.Channel, err)
			continue
		}
		if err := acc.Observe(ev.Channel, ev.Timestamp, msg); err != nil {
			return nil, err
		}
		stats.Messages[ev.Channel]++
		stats.Decoded++
	}
	stats.ResyncBytes = f.Resynced()

	doc := acc.Finalize()
	for _, ch := range doc.Channels {
		if len(ch.Skipped) > 0 {
			stats.SkippedFields[ch.Name] = ch.Skipped
			log.Warn("fields not representable as columns, dropped",
				zap.String("channel", ch.Name),
				zap.Strings("fields", ch.Skipped))
		}
	}
	if stats.ResyncBytes > 0 {
		log.Warn("skipped corrupt bytes between events", zap.Int64("bytes", stats.ResyncBytes))
	}

	if err := smat.Write(doc, opts.OutPath, opts.Format); err != nil {
		return nil, err
	}

	for _, ch := range doc.Channels {
		log.Info("channel",
			zap.String("name", ch.Name),
			zap.Int64("messages", stats.Messages[ch.Name]),
			zap.Int("columns", len(ch.Columns)))
	}
	log.Info("wrote archive",
		zap.String("path", opts.OutPath),
		zap.Int("channels", len(doc.Channels)),
		zap.Int64("messages", stats.Decoded),
		zap.Int64("skipped", stats.Skipped()))
	return stats, nil
}

func logProgress(log *zap.Logger, f *lcmlog.File, stats *Stats) {
	fields := []zap.Field{zap.Int64("events", stats.Events)}
	if size := f.Size(); size > 0 {
		fields = append(fields, zap.String("done", fmt.Sprintf("%.1f%%", float64(f.Tell())*100/float64(size))))
	}
	log.Info("progress", fields...)
}

func recordDecodeError(log *zap.Logger, stats *Stats, warned map[string]bool, channel string, err error) {
	stats.DecodeErrors[channel]++
	if !warned[channel] {
		warned[channel] = true
		log.Warn("record undecodable, skipping",
			zap.String("channel", channel), zap.Error(err))
		return
	}
	log.Debug("record undecodable, skipping",
		zap.String("channel", channel), zap.Error(err))
}
