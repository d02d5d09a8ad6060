//go:build tinygo

package main

import "machine"

const (
	// Button polling
	BUTTON_POLL_MS = 1 // Button level check interval in milliseconds

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Button pins (active low, internal pull-up): S1 selects channel A, S2 channel B
	PIN_S1 = machine.D7
	PIN_S2 = machine.D8

	// ADC pins
	PIN_ADC_A = machine.A1
	PIN_ADC_B = machine.A10

	// Serial configuration
	// Longest line: "C,1234567890123456,4095,4095\n" = 30 bytes.
	// At a 100ms conversion period plus button changes the link carries well
	// under 1 kB/s; 115200 baud leaves ample headroom.
	UART_BAUD_RATE = 115200
)
