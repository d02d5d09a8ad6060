package telemetry

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when no baud rate is configured.
const DefaultBaudRate = 115200

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// SerialSink writes one CSV line per report:
//
//	unix_micros,a,b
//
// A channel without an average yet leaves its field empty.
type SerialSink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	buf []byte
}

// NewSerialSink writes reports to w.
func NewSerialSink(w io.WriteCloser) *SerialSink {
	return &SerialSink{w: w}
}

// OpenSerial opens a serial port and returns a sink writing to it.
func OpenSerial(port string, baudRate int) (*SerialSink, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return NewSerialSink(conn), nil
}

// AppendLine appends the CSV encoding of r to dst.
func AppendLine(dst []byte, r Report) []byte {
	dst = strconv.AppendInt(dst, r.Time.UnixMicro(), 10)
	for _, rd := range r.Readings {
		dst = append(dst, ',')
		if rd.Valid {
			dst = strconv.AppendUint(dst, uint64(rd.Raw), 10)
		}
	}
	return append(dst, '\n')
}

// Publish writes the report as one CSV line.
func (s *SerialSink) Publish(r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return fmt.Errorf("serial sink closed")
	}
	s.buf = AppendLine(s.buf[:0], r)
	if _, err := s.w.Write(s.buf); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Close closes the serial port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}
