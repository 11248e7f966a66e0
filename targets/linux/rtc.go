//go:build linux

package main

import (
	"time"

	"periph.io/x/conn/v3/i2c"
)

// DS3231 register map, the slice the clock needs
const (
	ds3231Addr = 0x68

	ds3231RegTime    = 0x00 // seconds, minutes, hours, dow, date, month, year
	ds3231RegControl = 0x0E
	ds3231RegStatus  = 0x0F
	ds3231RegTemp    = 0x11 // MSB + 2 fraction bits in LSB

	ds3231ControlEOSC = 1 << 7 // oscillator stop on battery when set
	ds3231StatusOSF   = 1 << 7 // oscillator was stopped since last clear
)

// DS3231 drives the clock chip over a periph I2C bus. periph carries
// no driver for this chip, so the register access lives here. The chip
// holds UTC in 24-hour mode; SetTime always writes that form.
type DS3231 struct {
	dev *i2c.Dev
}

// NewDS3231 wires the chip on an open bus
func NewDS3231(bus i2c.Bus) *DS3231 {
	return &DS3231{dev: &i2c.Dev{Bus: bus, Addr: ds3231Addr}}
}

// ReadTime returns the chip's current time
func (d *DS3231) ReadTime() (time.Time, error) {
	var raw [7]byte
	if err := d.dev.Tx([]byte{ds3231RegTime}, raw[:]); err != nil {
		return time.Time{}, err
	}

	sec := bcdToInt(raw[0] & 0x7F)
	min := bcdToInt(raw[1] & 0x7F)
	hour := bcdToInt(raw[2] & 0x3F) // 24-hour form, bit 6 clear
	day := bcdToInt(raw[4] & 0x3F)
	month := bcdToInt(raw[5] & 0x1F) // mask the century flag
	year := 2000 + bcdToInt(raw[6])

	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC), nil
}

// SetTime writes the chip, clears the oscillator-stop flag and makes
// sure the oscillator keeps running on battery.
func (d *DS3231) SetTime(t time.Time) error {
	t = t.UTC()
	buf := []byte{
		ds3231RegTime,
		intToBCD(t.Second()),
		intToBCD(t.Minute()),
		intToBCD(t.Hour()),
		byte(t.Weekday()) + 1,
		intToBCD(t.Day()),
		intToBCD(int(t.Month())),
		intToBCD(t.Year() % 100),
	}
	if err := d.dev.Tx(buf, nil); err != nil {
		return err
	}

	if err := d.clearStatusOSF(); err != nil {
		return err
	}
	return d.enableOscillator()
}

// LostPower reports whether the oscillator stopped since the last
// SetTime. Latched by the chip across battery swaps.
func (d *DS3231) LostPower() (bool, error) {
	var st [1]byte
	if err := d.dev.Tx([]byte{ds3231RegStatus}, st[:]); err != nil {
		return false, err
	}
	return st[0]&ds3231StatusOSF != 0, nil
}

// Temperature returns the die temperature in milli-degrees Celsius.
// The chip updates the reading every 64 seconds.
func (d *DS3231) Temperature() (int32, error) {
	var raw [2]byte
	if err := d.dev.Tx([]byte{ds3231RegTemp}, raw[:]); err != nil {
		return 0, err
	}
	// 10-bit two's complement in 0.25 C steps
	quarters := int32(int16(uint16(raw[0])<<8|uint16(raw[1])) >> 6)
	return quarters * 250, nil
}

func (d *DS3231) clearStatusOSF() error {
	var st [1]byte
	if err := d.dev.Tx([]byte{ds3231RegStatus}, st[:]); err != nil {
		return err
	}
	if st[0]&ds3231StatusOSF == 0 {
		return nil
	}
	return d.dev.Tx([]byte{ds3231RegStatus, st[0] &^ ds3231StatusOSF}, nil)
}

func (d *DS3231) enableOscillator() error {
	var ctl [1]byte
	if err := d.dev.Tx([]byte{ds3231RegControl}, ctl[:]); err != nil {
		return err
	}
	if ctl[0]&ds3231ControlEOSC == 0 {
		return nil
	}
	return d.dev.Tx([]byte{ds3231RegControl, ctl[0] &^ ds3231ControlEOSC}, nil)
}

func bcdToInt(v byte) int {
	return int(v>>4)*10 + int(v&0x0F)
}

func intToBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}
