// Package hal is the thin, typed facade over the Revolution Pi process
// image and the Nanotec driver that the rest of the daemon is built
// on: read endstops and the emergency-stop line, write heater and fan
// outputs, read thermistors, and enumerate/command motors.
//
// Grounded on gpio_hal.go, pwm_hal.go and adc_hal.go's style of small
// typed wrappers around one peripheral class each, generalized into a
// single facade type since this daemon has far fewer distinct I/O
// points than a general-purpose MCU runtime does.
package hal

import (
	"fmt"
	"time"

	"github.com/PS-3D/3dprintd/internal/axis"
	"github.com/PS-3D/3dprintd/internal/nanotec"
	"github.com/PS-3D/3dprintd/internal/revpi"
)

// IOPoint addresses a single digital bit in the process image.
type IOPoint struct {
	Byte int
	Bit  uint
}

// AnalogPoint addresses a 16-bit analog word in the process image.
type AnalogPoint struct {
	Byte int
}

// Config wires every physical I/O point and motor address the HAL
// needs. All fields are required; zero values are not meaningful
// defaults for a real process image layout.
type Config struct {
	ProcessImageSize int

	Endstop  [3]IOPoint // indexed by axis.Axis (X, Y, Z)
	EStopLine IOPoint

	HotendHeater IOPoint
	BedHeater    IOPoint
	Fan          IOPoint

	HotendThermistor AnalogPoint
	BedThermistor    AnalogPoint

	MotorAddress [3]uint8 // indexed by axis.Axis
	ExtruderAddress uint8
}

// HAL is the facade. It owns the process image mapping; the Nanotec
// driver is owned by Motors (which closes it) and only referenced here
// for the EStop path the EStop worker uses and the Broadcast/PerMotor
// accessors, without reaching into Motors directly.
type HAL struct {
	cfg    Config
	img    *revpi.ProcessImage
	driver *nanotec.Driver
}

// New builds a HAL over an already-open process image and driver.
func New(cfg Config, img *revpi.ProcessImage, driver *nanotec.Driver) *HAL {
	return &HAL{cfg: cfg, img: img, driver: driver}
}

// ReadEndstop reports whether the given axis's endstop is triggered.
func (h *HAL) ReadEndstop(a axis.Axis) (bool, error) {
	p := h.cfg.Endstop[a]
	return h.img.ReadBit(p.Byte, p.Bit)
}

// ReadEStopLine reports whether the emergency-stop line is asserted.
func (h *HAL) ReadEStopLine() (bool, error) {
	return h.img.ReadBit(h.cfg.EStopLine.Byte, h.cfg.EStopLine.Bit)
}

// SetHotendHeater turns the hotend heater output on or off.
func (h *HAL) SetHotendHeater(on bool) error {
	return h.img.WriteBit(h.cfg.HotendHeater.Byte, h.cfg.HotendHeater.Bit, on)
}

// SetBedHeater turns the bed heater output on or off.
func (h *HAL) SetBedHeater(on bool) error {
	return h.img.WriteBit(h.cfg.BedHeater.Byte, h.cfg.BedHeater.Bit, on)
}

// SetFan turns the part-cooling fan on or off. Fans are auto-controlled
// (M106/M107 are no-ops in the decoder), so this is not driven by
// G-code; no other package in the daemon calls it.
func (h *HAL) SetFan(on bool) error {
	return h.img.WriteBit(h.cfg.Fan.Byte, h.cfg.Fan.Bit, on)
}

// thermistorToCelsius converts a raw 16-bit ADC reading to degrees
// Celsius using a linear approximation over the sensor's usable range.
// A real deployment would swap this for a Steinhart-Hart table fit to
// the installed thermistor; the shape (raw word in, float64 out) is
// what the rest of the daemon depends on.
func thermistorToCelsius(raw uint16) float64 {
	const fullScale = 1 << 12 // 12-bit ADC behind the process image word
	const maxTempC = 350.0
	if raw > fullScale {
		raw = fullScale
	}
	return maxTempC * (1.0 - float64(raw)/float64(fullScale))
}

// ReadHotendTemp returns the hotend thermistor reading in Celsius.
func (h *HAL) ReadHotendTemp() (float64, error) {
	raw, err := h.img.ReadWord(h.cfg.HotendThermistor.Byte)
	if err != nil {
		return 0, err
	}
	return thermistorToCelsius(raw), nil
}

// ReadBedTemp returns the bed thermistor reading in Celsius.
func (h *HAL) ReadBedTemp() (float64, error) {
	raw, err := h.img.ReadWord(h.cfg.BedThermistor.Byte)
	if err != nil {
		return 0, err
	}
	return thermistorToCelsius(raw), nil
}

// MotorAddress returns the bus address configured for the given axis.
func (h *HAL) MotorAddress(a axis.Axis) uint8 { return h.cfg.MotorAddress[a] }

// ExtruderAddress returns the bus address configured for the extruder.
func (h *HAL) ExtruderAddress() uint8 { return h.cfg.ExtruderAddress }

// Broadcast returns the driver handle for sending to every motor at
// once (nanotec.Broadcast).
func (h *HAL) Broadcast() *nanotec.Driver { return h.driver }

// PerMotor returns the driver handle for addressing a single motor;
// the driver itself is address-parameterized per call, so this simply
// exposes the same handle as Broadcast.
func (h *HAL) PerMotor() *nanotec.Driver { return h.driver }

// EStop fires the emergency stop: every motor is commanded to halt on
// its quick-stop ramp within overtravel, and the driver bypasses its
// normal command queue to do so immediately (see nanotec.Driver.EStop).
func (h *HAL) EStop(overtravel time.Duration) error {
	if err := h.driver.EStop(overtravel); err != nil {
		return fmt.Errorf("hal: estop: %w", err)
	}
	return nil
}

// Close releases the process image mapping. The Nanotec driver is not
// owned here and must be closed by its owner (Motors).
func (h *HAL) Close() error {
	return h.img.Close()
}
