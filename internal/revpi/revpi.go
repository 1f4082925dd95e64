// Package revpi gives typed read/write access to the Revolution Pi
// process image: the shared-memory byte array the piControl kernel
// driver exposes at /dev/piControl0, through which every digital
// input/output (endstops, the emergency-stop line, heater and fan
// enables) and analog input (thermistors) is addressed by byte offset
// and bit/word width.
//
// Grounded on BigBossBoolingB-VDATABPro's
// core_engine/network/tap_device.go: open a device node, mmap it
// with golang.org/x/sys/unix, then read/write the mapped region
// directly — the same shape, retargeted from a TUN/TAP network device
// to the piControl process image.
package revpi

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const devicePath = "/dev/piControl0"

// ProcessImage is a memory-mapped view of the Revolution Pi's I/O
// state. All accessors are safe for concurrent use; ordinarily only
// the Thermal regulator and HAL callers touch this, but the mapping
// itself may be read from multiple goroutines (estop line polling,
// thermistor reads) so it is internally locked.
type ProcessImage struct {
	fd  int
	mem []byte
	mu  sync.RWMutex
}

// Open opens /dev/piControl0 and maps size bytes of its process image.
// size is supplied by the caller (cmd/3dprintd's fixed layout); it is
// not queried from the piControl driver.
func Open(size int) (*ProcessImage, error) {
	fd, err := unix.Open(devicePath, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("revpi: open %s: %w", devicePath, err)
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("revpi: mmap: %w", err)
	}

	return &ProcessImage{fd: fd, mem: mem}, nil
}

// Close unmaps the process image and closes the device.
func (p *ProcessImage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mem != nil {
		if err := unix.Munmap(p.mem); err != nil {
			return fmt.Errorf("revpi: munmap: %w", err)
		}
		p.mem = nil
	}
	return unix.Close(p.fd)
}

// ReadBit reads a single bit at (byteOffset, bitOffset).
func (p *ProcessImage) ReadBit(byteOffset int, bitOffset uint) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if byteOffset < 0 || byteOffset >= len(p.mem) {
		return false, fmt.Errorf("revpi: byte offset %d out of range", byteOffset)
	}
	return p.mem[byteOffset]&(1<<bitOffset) != 0, nil
}

// WriteBit sets or clears a single bit at (byteOffset, bitOffset).
func (p *ProcessImage) WriteBit(byteOffset int, bitOffset uint, v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if byteOffset < 0 || byteOffset >= len(p.mem) {
		return fmt.Errorf("revpi: byte offset %d out of range", byteOffset)
	}
	if v {
		p.mem[byteOffset] |= 1 << bitOffset
	} else {
		p.mem[byteOffset] &^= 1 << bitOffset
	}
	return nil
}

// ReadWord reads a little-endian 16-bit analog value (e.g. a
// thermistor ADC channel) at byteOffset.
func (p *ProcessImage) ReadWord(byteOffset int) (uint16, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if byteOffset < 0 || byteOffset+1 >= len(p.mem) {
		return 0, fmt.Errorf("revpi: word offset %d out of range", byteOffset)
	}
	return uint16(p.mem[byteOffset]) | uint16(p.mem[byteOffset+1])<<8, nil
}
