package hw

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/ledavg/pkg/config"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// DefaultBaudRate is the baud rate of the bridge firmware.
const DefaultBaudRate = 115200

// DefaultReplyTimeout bounds how long a start request waits for its
// conversion line before another request is accepted.
const DefaultReplyTimeout = time.Second

// Bridge line protocol, one message per line.
//
// Host to MCU:
//
//	S                  start a conversion of both channels
//
// MCU to host:
//
//	C,micros,a,b       conversion result, a and b in 0..4095; micros is the
//	                   MCU clock (time since boot), not wall time
//	B,xy               button levels, x for S1 and y for S2, 1 = released
const (
	cmdStart      = "S\n"
	msgConversion = 'C'
	msgButtons    = 'B'
)

// bridgeMessage is one parsed line from the MCU.
type bridgeMessage struct {
	Kind    byte
	Micros  int64 // MCU clock
	Values  [NumChannels]uint16
	Buttons [NumButtons]bool
}

// Bridge is a board whose ADC and buttons live on a microcontroller running
// the bridge firmware, connected over a serial port. The display is a
// VirtualDisplay on the host.
type Bridge struct {
	*VirtualDisplay

	log  *zap.Logger
	conn io.ReadWriteCloser

	mu      sync.RWMutex
	handler ConversionHandler

	buttons [NumButtons]atomic.Bool

	start   chan struct{}
	timeout time.Duration
	pending atomic.Int64 // reply deadline in unix nanos of the outstanding request, 0 when idle
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	conversions atomic.Uint64
	overruns    atomic.Uint64
	badLines    atomic.Uint64
}

// OpenBridge opens the serial port and starts talking to the firmware.
func OpenBridge(cfg *config.SerialConfig, log *zap.Logger) (*Bridge, error) {
	baudRate := cfg.BaudRate
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return NewBridge(port, log), nil
}

// NewBridge runs the bridge protocol over conn. Buttons read released until
// the firmware reports otherwise.
func NewBridge(conn io.ReadWriteCloser, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		VirtualDisplay: &VirtualDisplay{},
		log:            log.Named("bridge"),
		conn:           conn,
		start:          make(chan struct{}, 1),
		timeout:        DefaultReplyTimeout,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
	}
	for i := range b.buttons {
		b.buttons[i].Store(true)
	}

	b.wg.Add(2)
	go b.readLines()
	go b.writeCommands()
	return b
}

func (b *Bridge) ADC() ADC         { return b }
func (b *Bridge) Buttons() Buttons { return b }
func (b *Bridge) Display() Display { return b }

// Close stops the protocol goroutines and closes the port.
func (b *Bridge) Close() error {
	var err error
	b.once.Do(func() {
		b.cancel()
		err = b.conn.Close()
		b.wg.Wait()
	})
	return err
}

// StartConversion asks the firmware for a conversion. A request made while
// the previous one has not been answered is dropped, unless that reply is
// overdue.
func (b *Bridge) StartConversion() {
	now := b.now().UnixNano()
	deadline := b.pending.Load()
	if deadline != 0 && now < deadline {
		b.overruns.Add(1)
		return
	}
	if !b.pending.CompareAndSwap(deadline, now+int64(b.timeout)) {
		b.overruns.Add(1)
		return
	}
	if deadline != 0 {
		b.log.Debug("conversion reply overdue")
	}
	select {
	case b.start <- struct{}{}:
	default:
		b.overruns.Add(1)
	}
}

// SetHandler installs the conversion subscriber.
func (b *Bridge) SetHandler(h ConversionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Level returns the last level reported for a button.
func (b *Bridge) Level(button int) bool {
	return b.buttons[button].Load()
}

// Conversions returns how many conversion results were received.
func (b *Bridge) Conversions() uint64 {
	return b.conversions.Load()
}

// Overruns returns how many start requests were dropped.
func (b *Bridge) Overruns() uint64 {
	return b.overruns.Load()
}

// BadLines returns how many lines could not be parsed.
func (b *Bridge) BadLines() uint64 {
	return b.badLines.Load()
}

func (b *Bridge) writeCommands() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.start:
		}
		if _, err := io.WriteString(b.conn, cmdStart); err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.log.Warn("failed to send start command", zap.Error(err))
		}
	}
}

// readLines reads lines from the serial port and dispatches them.
func (b *Bridge) readLines() {
	defer b.wg.Done()

	scanner := bufio.NewScanner(b.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, err := parseBridgeLine(line)
		if err != nil {
			b.badLines.Add(1)
			b.log.Debug("failed to parse line", zap.String("line", line), zap.Error(err))
			continue
		}
		b.dispatch(msg)
	}

	if err := scanner.Err(); err != nil && b.ctx.Err() == nil {
		b.log.Warn("error reading from serial port", zap.Error(err))
	}
}

func (b *Bridge) dispatch(msg bridgeMessage) {
	switch msg.Kind {
	case msgButtons:
		for i, high := range msg.Buttons {
			b.buttons[i].Store(high)
		}
	case msgConversion:
		b.mu.RLock()
		h := b.handler
		b.mu.RUnlock()
		if h != nil {
			for ch, v := range msg.Values {
				h(Channel(ch), v)
			}
		}
		b.conversions.Add(1)
		b.pending.Store(0)
	}
}

// parseBridgeLine parses one line from the firmware.
// Examples: "C,1234567890,2048,1024" and "B,10".
func parseBridgeLine(line string) (bridgeMessage, error) {
	parts := strings.Split(line, ",")
	if len(parts[0]) != 1 {
		return bridgeMessage{}, fmt.Errorf("invalid message kind %q", parts[0])
	}

	switch kind := parts[0][0]; kind {
	case msgConversion:
		if len(parts) != 4 {
			return bridgeMessage{}, fmt.Errorf("invalid conversion: expected 4 comma-separated values, got %d", len(parts))
		}
		micros, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return bridgeMessage{}, fmt.Errorf("invalid micros: %w", err)
		}
		msg := bridgeMessage{Kind: kind, Micros: micros}
		for i := range msg.Values {
			v, err := strconv.ParseUint(parts[2+i], 10, 16)
			if err != nil {
				return bridgeMessage{}, fmt.Errorf("invalid value for channel %v: %w", Channel(i), err)
			}
			if v > MaxValue {
				return bridgeMessage{}, fmt.Errorf("value out of range for channel %v: %d (max %d)", Channel(i), v, MaxValue)
			}
			msg.Values[i] = uint16(v)
		}
		return msg, nil

	case msgButtons:
		if len(parts) != 2 || len(parts[1]) != NumButtons {
			return bridgeMessage{}, fmt.Errorf("invalid button states %q", line)
		}
		msg := bridgeMessage{Kind: kind}
		for i := range msg.Buttons {
			switch parts[1][i] {
			case '0':
			case '1':
				msg.Buttons[i] = true
			default:
				return bridgeMessage{}, fmt.Errorf("invalid button level %q", parts[1][i])
			}
		}
		return msg, nil

	default:
		return bridgeMessage{}, fmt.Errorf("unknown message kind %q", kind)
	}
}
