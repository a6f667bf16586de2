package lcmlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/multierr"
)

// Reader iterates events from a raw event-log stream.
type Reader struct {
	reader   *bufio.Reader
	started  bool
	resynced int64
	buf      []byte
	ev       Event
}

func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next event in the log, or io.EOF at the end. The first
// event must begin at offset zero; after that, garbage between events is
// skipped by scanning for the next sync word, the way the reference C reader
// recovers. The returned event borrows the Reader's internal buffer and is
// valid until the following Next call.
func (r *Reader) Next() (*Event, error) {
	for {
		if err := r.sync(); err != nil {
			return nil, err
		}

		hdr, err := r.fill(headerLen, 0)
		if err != nil {
			return nil, err
		}

		eventNum := int64(binary.BigEndian.Uint64(hdr))
		utime := int64(binary.BigEndian.Uint64(hdr[8:]))
		chanLen := int32(binary.BigEndian.Uint32(hdr[16:]))
		dataLen := int32(binary.BigEndian.Uint32(hdr[20:]))

		if chanLen <= 0 || chanLen > maxChannelLen || dataLen < 0 || dataLen > maxDataLen {
			// Bogus lengths mean the sync word was a payload coincidence or
			// the log is corrupt mid-stream. Count the event header and keep
			// scanning.
			r.resynced += 4 + headerLen
			continue
		}

		body, err := r.fill(int(chanLen)+int(dataLen), headerLen)
		if err != nil {
			return nil, err
		}

		r.ev = Event{
			EventNum:  eventNum,
			Timestamp: utime,
			Channel:   string(body[:chanLen]),
			Data:      body[chanLen:],
		}
		return &r.ev, nil
	}
}

// Resynced reports the number of bytes skipped so far while scanning for sync
// words between events.
func (r *Reader) Resynced() int64 { return r.resynced }

// sync positions the reader just past the next sync word.
func (r *Reader) sync() error {
	var magic uint32
	for i := 0; ; i++ {
		b, err := r.reader.ReadByte()
		if err == io.EOF {
			switch {
			case i == 0:
				return io.EOF // clean end at an event boundary
			case !r.started:
				return fmt.Errorf("%w: no sync word in %d bytes", ErrNotEventLog, i)
			default:
				// Trailing garbage with no further event; surface it through
				// the resync counter and end the log.
				r.resynced += int64(i)
				return io.EOF
			}
		}
		if err != nil {
			return fmt.Errorf("lcmlog: read: %w", err)
		}

		magic = magic<<8 | uint32(b)
		if i >= 3 && magic == Magic {
			if !r.started && i != 3 {
				return fmt.Errorf("%w: sync word at offset %d, not 0", ErrNotEventLog, i-3)
			}
			if r.started && i != 3 {
				r.resynced += int64(i - 3)
			}
			r.started = true
			return nil
		}
		if i >= 3 && !r.started {
			return ErrNotEventLog
		}
	}
}

// fill reads n bytes into the reusable buffer at off, growing it as needed.
func (r *Reader) fill(n, off int) ([]byte, error) {
	if need := off + n; cap(r.buf) < need {
		grown := make([]byte, need)
		copy(grown, r.buf[:off])
		r.buf = grown
	}
	r.buf = r.buf[:off+n]
	got, err := io.ReadFull(r.reader, r.buf[off:off+n])
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrTruncated, n, got)
		}
		return nil, fmt.Errorf("lcmlog: read: %w", err)
	}
	return r.buf[off : off+n], nil
}

// Info summarizes a full pre-scan of a log.
type Info struct {
	Events    int64
	Channels  map[string]int64 // event count per channel
	FirstTime int64
	LastTime  int64
}

// File is an event log opened from disk. Gzip, lz4-frame and zstd compressed
// logs are detected by their magic bytes and read transparently.
type File struct {
	*Reader

	f       *os.File
	size    int64
	counter *countingReader
	closers []io.Closer
}

// Open opens the log at path, failing with ErrNotEventLog if the (possibly
// decompressed) content does not start with the event sync word. A zero-byte
// log is valid and yields io.EOF from the first Next call.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lcmlog: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("lcmlog: %w", err)
	}

	lf := &File{f: f, size: st.Size()}
	if err := lf.reset(); err != nil {
		f.Close()
		return nil, err
	}
	return lf, nil
}

func (f *File) reset() error {
	f.closeDecompressors()

	if _, err := f.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("lcmlog: %w", err)
	}

	var magic [4]byte
	n, err := f.f.ReadAt(magic[:], 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("lcmlog: %w", err)
	}

	f.counter = &countingReader{r: f.f}

	var src io.Reader = f.counter
	switch {
	case n >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return fmt.Errorf("lcmlog: gzip: %w", err)
		}
		f.closers = append(f.closers, zr)
		src = zr
	case n >= 4 && binary.LittleEndian.Uint32(magic[:]) == 0xfd2fb528:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return fmt.Errorf("lcmlog: zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		f.closers = append(f.closers, rc)
		src = rc
	case n >= 4 && binary.LittleEndian.Uint32(magic[:]) == 0x184d2204:
		src = lz4.NewReader(src)
	}

	f.Reader = NewReader(src)
	return nil
}

func (f *File) closeDecompressors() {
	for _, c := range f.closers {
		c.Close()
	}
	f.closers = nil
}

// Rewind restarts the event sequence from the beginning of the log.
func (f *File) Rewind() error { return f.reset() }

// Size returns the on-disk (compressed) size of the log in bytes.
func (f *File) Size() int64 { return f.size }

// Tell returns the number of on-disk bytes consumed so far. Together with
// Size it drives percent-done progress reporting; readahead makes it slightly
// optimistic, which is fine for that purpose.
func (f *File) Tell() int64 { return f.counter.n }

// Info scans the remaining events for totals and the channel set, then
// rewinds the file.
func (f *File) Info() (*Info, error) {
	info := &Info{Channels: make(map[string]int64)}
	for {
		ev, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if info.Events == 0 {
			info.FirstTime = ev.Timestamp
		}
		info.LastTime = ev.Timestamp
		info.Events++
		info.Channels[ev.Channel]++
	}
	if err := f.Rewind(); err != nil {
		return nil, err
	}
	return info, nil
}

func (f *File) Close() error {
	var err error
	for _, c := range f.closers {
		err = multierr.Append(err, c.Close())
	}
	f.closers = nil
	return multierr.Append(err, f.f.Close())
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
