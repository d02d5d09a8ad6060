package hw

import "sync"

// VirtualDisplay records what a multiplexed display would show. Each
// position latches the segment bus while it is enabled, and enabling a
// position while another one is still on is counted as an overlap.
type VirtualDisplay struct {
	mu       sync.Mutex
	enabled  [NumDigits]bool
	bus      uint8
	shown    [NumDigits]uint8
	overlaps uint64
	writes   uint64
}

// SetPosition switches a digit enable line.
func (d *VirtualDisplay) SetPosition(pos int, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if on {
		for i, lit := range d.enabled {
			if lit && i != pos {
				d.overlaps++
				break
			}
		}
		d.shown[pos] = d.bus
	}
	d.enabled[pos] = on
}

// WriteSegments drives the segment bus. Every enabled position shows it.
func (d *VirtualDisplay) WriteSegments(pattern uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bus = pattern & 0x7f
	d.writes++
	for i, lit := range d.enabled {
		if lit {
			d.shown[i] = d.bus
		}
	}
}

// Shown returns the pattern each position displayed the last time it was lit.
func (d *VirtualDisplay) Shown() [NumDigits]uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

// Enabled returns the current state of the digit enable lines.
func (d *VirtualDisplay) Enabled() [NumDigits]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Overlaps returns how many times a position was enabled while another one
// was still on.
func (d *VirtualDisplay) Overlaps() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlaps
}

// SegmentWrites returns the number of segment bus writes.
func (d *VirtualDisplay) SegmentWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}
