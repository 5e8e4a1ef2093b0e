package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/statlink/statlink-go/pkg/log"
)

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) snapshot() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]log.Event(nil), c.events...)
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"small", []byte("statlink")},
		{"max size", bytes.Repeat([]byte{0xa5}, DefaultMaxMessageSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFrameWriter(&buf).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != LengthPrefixSize+len(tt.payload) {
				t.Errorf("frame size = %d", buf.Len())
			}
			got, err := NewFrameReader(&buf).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestFrameWriterErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriterWithMaxSize(&buf, 8)

	if err := w.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("empty: got %v", err)
	}
	if err := w.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("too large: got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("rejected frames must not be written")
	}
}

func TestFrameReaderErrors(t *testing.T) {
	prefix := func(n uint32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, n)
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"clean eof", nil, io.EOF},
		{"short prefix", []byte{0, 0}, ErrFrameTruncated},
		{"zero length", prefix(0), ErrMessageEmpty},
		{"too large", prefix(DefaultMaxMessageSize + 1), ErrMessageTooLarge},
		{"short payload", append(prefix(10), 1, 2, 3), ErrFrameTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(bytes.NewReader(tt.data)).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFramerCapturesFrames(t *testing.T) {
	var buf bytes.Buffer
	logger := &captureLogger{}
	f := NewFramer(&buf)
	f.SetLogger(logger, "conn-1")

	if err := f.WriteFrame([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ReadFrame(); err != nil {
		t.Fatal(err)
	}

	events := logger.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Direction != log.DirectionOut || events[1].Direction != log.DirectionIn {
		t.Errorf("directions: %s, %s", events[0].Direction, events[1].Direction)
	}
	if events[0].Frame == nil || events[0].Frame.Size != 7 {
		t.Errorf("frame event: %+v", events[0].Frame)
	}
	if events[1].ConnectionID != "conn-1" {
		t.Errorf("ConnectionID = %q", events[1].ConnectionID)
	}
}

func TestFrameWriterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			_ = w.WriteFrame(bytes.Repeat([]byte{b}, 100))
		}(byte(i))
	}
	wg.Wait()

	r := NewFrameReader(&buf)
	for i := 0; i < 20; i++ {
		frame, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		for _, b := range frame {
			if b != frame[0] {
				t.Fatalf("frame %d interleaved", i)
			}
		}
	}
}
