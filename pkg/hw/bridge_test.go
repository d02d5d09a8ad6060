package hw

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBridgeLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    bridgeMessage
		wantErr bool
	}{
		{
			name: "conversion",
			line: "C,1234567890,2048,1024",
			want: bridgeMessage{
				Kind:   msgConversion,
				Micros: 1234567890,
				Values: [NumChannels]uint16{2048, 1024},
			},
		},
		{
			name: "conversion full scale",
			line: "C,0,4095,0",
			want: bridgeMessage{Kind: msgConversion, Values: [NumChannels]uint16{4095, 0}},
		},
		{
			name: "buttons",
			line: "B,10",
			want: bridgeMessage{Kind: msgButtons, Buttons: [NumButtons]bool{true, false}},
		},
		{name: "value out of range", line: "C,1,4096,0", wantErr: true},
		{name: "missing value", line: "C,1,2048", wantErr: true},
		{name: "bad timestamp", line: "C,abc,1,2", wantErr: true},
		{name: "bad value", line: "C,1,x,2", wantErr: true},
		{name: "short buttons", line: "B,1", wantErr: true},
		{name: "bad button level", line: "B,12", wantErr: true},
		{name: "unknown kind", line: "X,1", wantErr: true},
		{name: "long kind", line: "CC,1,2,3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBridgeLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeFirmware answers start commands on the MCU end of a pipe.
type fakeFirmware struct {
	conn   net.Conn
	values [NumChannels]uint16
	silent bool // count start commands without answering
	starts chan struct{}
}

func newBridgePair(t *testing.T, values [NumChannels]uint16) (*Bridge, *fakeFirmware) {
	t.Helper()
	return startBridge(t, &fakeFirmware{values: values})
}

func startBridge(t *testing.T, fw *fakeFirmware) (*Bridge, *fakeFirmware) {
	t.Helper()
	host, mcu := net.Pipe()
	fw.conn = mcu
	fw.starts = make(chan struct{}, 16)
	go fw.run()

	b := NewBridge(host, nil)
	t.Cleanup(func() {
		b.Close()
		mcu.Close()
	})
	return b, fw
}

func (f *fakeFirmware) run() {
	r := bufio.NewReader(f.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if line != cmdStart {
			continue
		}
		f.starts <- struct{}{}
		if f.silent {
			continue
		}
		if _, err := fmt.Fprintf(f.conn, "C,%d,%d,%d\n", time.Now().UnixMicro(), f.values[0], f.values[1]); err != nil {
			return
		}
	}
}

func (f *fakeFirmware) send(line string) error {
	_, err := io.WriteString(f.conn, line)
	return err
}

func TestBridge_Conversion(t *testing.T) {
	b, fw := newBridgePair(t, [NumChannels]uint16{115, 3000})
	var c collector
	b.ADC().SetHandler(c.handle)

	b.ADC().StartConversion()
	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []result{{ChannelA, 115}, {ChannelB, 3000}}, c.snapshot())
	assert.Equal(t, uint64(1), b.Conversions())
	assert.Len(t, fw.starts, 1)
}

func TestBridge_Buttons(t *testing.T) {
	b, fw := newBridgePair(t, [NumChannels]uint16{})
	assert.True(t, b.Buttons().Level(0))
	assert.True(t, b.Buttons().Level(1))

	require.NoError(t, fw.send("B,01\n"))
	require.Eventually(t, func() bool { return !b.Level(0) }, time.Second, time.Millisecond)
	assert.True(t, b.Level(1))

	require.NoError(t, fw.send("B,11\n"))
	require.Eventually(t, func() bool { return b.Level(0) }, time.Second, time.Millisecond)
}

func TestBridge_BadLinesSkipped(t *testing.T) {
	b, fw := newBridgePair(t, [NumChannels]uint16{})
	var c collector
	b.SetHandler(c.handle)

	require.NoError(t, fw.send("garbage\n\nC,1,9999,0\nC,1,1,2\n"))
	require.Eventually(t, func() bool { return b.Conversions() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(2), b.BadLines())
	assert.Equal(t, []result{{ChannelA, 1}, {ChannelB, 2}}, c.snapshot())
}

func TestBridge_DisplayIsVirtual(t *testing.T) {
	b, _ := newBridgePair(t, [NumChannels]uint16{})
	d := b.Display()

	d.WriteSegments(0x7e)
	d.SetPosition(3, true)
	assert.Equal(t, uint8(0x7e), b.Shown()[3])
	assert.Zero(t, b.Overlaps())
}

func TestBridge_Close(t *testing.T) {
	host, mcu := net.Pipe()
	defer mcu.Close()
	b := NewBridge(host, nil)

	done := make(chan struct{})
	go func() {
		b.Close()
		b.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked")
	}
}

func TestBridge_StartWhileAwaitingReplyDropped(t *testing.T) {
	b, fw := startBridge(t, &fakeFirmware{silent: true})
	var c collector
	b.SetHandler(c.handle)

	b.StartConversion()
	require.Eventually(t, func() bool { return len(fw.starts) == 1 }, time.Second, time.Millisecond)

	b.StartConversion()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, fw.starts, 1, "no second S while the first is unanswered")
	assert.Equal(t, uint64(1), b.Overruns())

	require.NoError(t, fw.send("C,42,10,20\n"))
	require.Eventually(t, func() bool { return b.Conversions() == 1 }, time.Second, time.Millisecond)

	b.StartConversion()
	require.Eventually(t, func() bool { return len(fw.starts) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), b.Overruns())
	assert.Equal(t, []result{{ChannelA, 10}, {ChannelB, 20}}, c.snapshot())
}

func TestBridge_LostReplyTimesOut(t *testing.T) {
	b, fw := startBridge(t, &fakeFirmware{silent: true})
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.StartConversion()
	require.Eventually(t, func() bool { return len(fw.starts) == 1 }, time.Second, time.Millisecond)

	now = now.Add(DefaultReplyTimeout / 2)
	b.StartConversion()
	assert.Equal(t, uint64(1), b.Overruns())

	now = now.Add(DefaultReplyTimeout)
	b.StartConversion()
	require.Eventually(t, func() bool { return len(fw.starts) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), b.Overruns())
}
