// Package lcmlog reads LCM event log containers.
package lcmlog

import (
	"errors"
	"fmt"
)

// Magic is the sync word preceding every event, stored big-endian.
const Magic uint32 = 0xEDA1DA01

const (
	headerLen = 24 // eventnum + utime + chanlen + datalen, after the sync word

	// Sanity bounds on the header length fields. Values outside these are
	// treated as corruption and trigger a resync scan.
	maxChannelLen = 256
	maxDataLen    = 1 << 30
)

var (
	// ErrNotEventLog marks input whose first bytes are not the event sync word.
	ErrNotEventLog = errors.New("lcmlog: not an LCM event log")
	// ErrTruncated marks an event whose header or payload ends at EOF.
	ErrTruncated = errors.New("lcmlog: truncated event")
)

// Event is a single log record. Channel and Data returned by Reader.Next
// remain valid only until the following Next call.
type Event struct {
	EventNum  int64
	Timestamp int64 // microseconds since the epoch
	Channel   string
	Data      []byte
}

func (ev *Event) String() string {
	return fmt.Sprintf("#%d %s utime=%d len=%d", ev.EventNum, ev.Channel, ev.Timestamp, len(ev.Data))
}
