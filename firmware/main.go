//go:build tinygo

//go:generate tinygo flash -target=xiao

// Command firmware turns a XIAO SAMD21 into the ADC and button front end of
// the bridge backend: it converts both channels on request and reports
// button level changes over the UART.
package main

import (
	"machine"
	"time"
)

var (
	adcA machine.ADC
	adcB machine.ADC
	uart = machine.UART0

	// Last reported button levels, true = released
	buttonLevels [2]bool

	// Timing
	boot           time.Time
	lastButtonPoll time.Time

	// Serial buffer for reading lines
	serialBuffer [8]byte
	serialPos    int
)

func main() {
	// Configure buttons as inputs with pull-ups
	PIN_S1.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PIN_S2.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	// Configure ADC pins and set up ADCs with highest resolution
	PIN_ADC_A.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_ADC_B.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcA = machine.ADC{Pin: PIN_ADC_A}
	adcB = machine.ADC{Pin: PIN_ADC_B}

	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}

	adcA.Configure(adcConfig)
	adcB.Configure(adcConfig)

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	boot = time.Now()

	// Report the initial levels so the host starts in sync
	buttonLevels = [2]bool{PIN_S1.Get(), PIN_S2.Get()}
	outputButtons()
	lastButtonPoll = time.Now()

	for {
		now := time.Now()

		// Check for serial input (non-blocking)
		processSerial()

		if now.Sub(lastButtonPoll) >= time.Duration(BUTTON_POLL_MS)*time.Millisecond {
			pollButtons()
			lastButtonPoll = now
		}

		// Small delay to prevent tight loop (but still allow precise timing)
		time.Sleep(100 * time.Microsecond)
	}
}

// convert reads both channels, A first, and reports them.
// Output format: "C,micros,a,b\n", micros counted from boot
func convert() {
	a := adcA.Get() >> 4 // Get scales to 16 bits
	b := adcB.Get() >> 4

	print("C,")
	print(time.Since(boot).Microseconds())
	print(",")
	print(a)
	print(",")
	print(b)
	print("\n")
}

func pollButtons() {
	levels := [2]bool{PIN_S1.Get(), PIN_S2.Get()}
	if levels == buttonLevels {
		return
	}
	buttonLevels = levels
	outputButtons()
}

// outputButtons reports the button levels.
// Output format: "B,xy\n", 1 = released
func outputButtons() {
	print("B,")
	for _, high := range buttonLevels {
		if high {
			print("1")
		} else {
			print("0")
		}
	}
	print("\n")
}

func processSerial() {
	// Read available bytes from serial
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		// Check for newline (end of line)
		if data == '\n' || data == '\r' {
			if serialPos == 1 && serialBuffer[0] == 'S' {
				convert()
			}
			// Reset buffer regardless of length
			serialPos = 0
			continue
		}

		// Ignore whitespace
		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}
