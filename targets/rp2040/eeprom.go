//go:build rp2040

package main

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/at24cx"
)

// EEPROMStore implements the KV interface on the AT24C32 that shares
// the clock module's board. All reads and writes go against a RAM
// mirror; Commit serializes the whole image and rewrites it from
// offset zero. The persist layer debounces commits, so the chip sees
// at most a handful of write cycles per day.
//
// Image layout:
//
//	0..3  magic "GKV1"
//	4..5  record count, little endian
//	6..   records: keyLen u8, key bytes, valLen u8, value bytes
type EEPROMStore struct {
	dev    at24cx.Device
	values map[string][]byte
}

const (
	eepromSize       = 4096
	eepromHeaderSize = 6
)

var eepromMagic = [4]byte{'G', 'K', 'V', '1'}

var (
	errKeyNotFound  = errors.New("key not found")
	errBadValueSize = errors.New("stored value has wrong size")
	errImageFull    = errors.New("eeprom image full")
	errValueTooBig  = errors.New("value exceeds record limit")
)

// NewEEPROMStore creates the store and loads the persisted image.
// A blank or corrupt chip yields an empty store; first Commit writes
// a fresh image.
func NewEEPROMStore(bus drivers.I2C) *EEPROMStore {
	s := &EEPROMStore{
		dev:    at24cx.New(bus),
		values: make(map[string][]byte),
	}
	// AT24C32 defaults: 32-byte pages, 4KB address space
	s.dev.Configure(at24cx.Config{})
	s.load()
	return s
}

func (s *EEPROMStore) load() {
	var hdr [eepromHeaderSize]byte
	if _, err := s.dev.ReadAt(hdr[:], 0); err != nil {
		return
	}
	if hdr[0] != eepromMagic[0] || hdr[1] != eepromMagic[1] ||
		hdr[2] != eepromMagic[2] || hdr[3] != eepromMagic[3] {
		// Fresh chip
		return
	}

	count := int(hdr[4]) | int(hdr[5])<<8
	buf := make([]byte, eepromSize-eepromHeaderSize)
	if _, err := s.dev.ReadAt(buf, eepromHeaderSize); err != nil {
		return
	}

	pos := 0
	for i := 0; i < count; i++ {
		if pos >= len(buf) {
			return
		}
		keyLen := int(buf[pos])
		pos++
		if pos+keyLen > len(buf) {
			return
		}
		key := string(buf[pos : pos+keyLen])
		pos += keyLen

		if pos >= len(buf) {
			return
		}
		valLen := int(buf[pos])
		pos++
		if pos+valLen > len(buf) {
			return
		}
		val := make([]byte, valLen)
		copy(val, buf[pos:pos+valLen])
		pos += valLen

		s.values[key] = val
	}
}

func (s *EEPROMStore) get(key string, wantLen int) ([]byte, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, errKeyNotFound
	}
	if wantLen > 0 && len(v) != wantLen {
		return nil, errBadValueSize
	}
	return v, nil
}

func (s *EEPROMStore) GetBool(key string) (bool, error) {
	v, err := s.get(key, 1)
	if err != nil {
		return false, err
	}
	return v[0] != 0, nil
}

func (s *EEPROMStore) SetBool(key string, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	s.values[key] = []byte{b}
	return nil
}

func (s *EEPROMStore) GetU8(key string) (uint8, error) {
	v, err := s.get(key, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (s *EEPROMStore) SetU8(key string, v uint8) error {
	s.values[key] = []byte{v}
	return nil
}

func (s *EEPROMStore) GetI8(key string) (int8, error) {
	v, err := s.get(key, 1)
	if err != nil {
		return 0, err
	}
	return int8(v[0]), nil
}

func (s *EEPROMStore) SetI8(key string, v int8) error {
	s.values[key] = []byte{byte(v)}
	return nil
}

func (s *EEPROMStore) GetU32(key string) (uint32, error) {
	v, err := s.get(key, 4)
	if err != nil {
		return 0, err
	}
	return uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16 | uint32(v[3])<<24, nil
}

func (s *EEPROMStore) SetU32(key string, v uint32) error {
	s.values[key] = []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return nil
}

func (s *EEPROMStore) GetString(key string) (string, error) {
	v, err := s.get(key, 0)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *EEPROMStore) SetString(key string, v string) error {
	if len(v) > 255 {
		return errValueTooBig
	}
	s.values[key] = []byte(v)
	return nil
}

func (s *EEPROMStore) Delete(key string) error {
	delete(s.values, key)
	return nil
}

// Commit rewrites the whole image. The at24cx driver splits the write
// into page cycles internally.
func (s *EEPROMStore) Commit() error {
	image := make([]byte, eepromHeaderSize, 512)
	copy(image, eepromMagic[:])

	count := 0
	for key, val := range s.values {
		if len(key) > 255 {
			continue
		}
		if len(image)+2+len(key)+len(val) > eepromSize {
			return errImageFull
		}
		image = append(image, byte(len(key)))
		image = append(image, key...)
		image = append(image, byte(len(val)))
		image = append(image, val...)
		count++
	}
	image[4] = byte(count)
	image[5] = byte(count >> 8)

	_, err := s.dev.WriteAt(image, 0)
	return err
}
