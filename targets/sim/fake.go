//go:build linux

package main

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"goclock/core"
)

// FakeRTC emulates a battery-backed clock chip in RAM. It starts with
// the lost-power flag set, exactly like a fresh board, so the boot
// path has to win a network sync before the clock shows time.
type FakeRTC struct {
	mu        sync.Mutex
	offset    time.Duration
	lostPower bool
}

func NewFakeRTC() *FakeRTC {
	return &FakeRTC{lostPower: true}
}

func (r *FakeRTC) ReadTime() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Now().UTC().Add(r.offset), nil
}

func (r *FakeRTC) SetTime(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset = time.Until(t)
	r.lostPower = false
	return nil
}

func (r *FakeRTC) LostPower() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lostPower, nil
}

func (r *FakeRTC) Temperature() (int32, error) {
	// A plausible die temperature
	return 23250, nil
}

// MemStore is the settings store for simulator runs: same typed
// surface as the real targets, nothing survives the process.
type MemStore struct {
	values map[string]string
}

var errKeyNotFound = errors.New("key not found")

func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

func (s *MemStore) get(key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", errKeyNotFound
	}
	return v, nil
}

func (s *MemStore) GetBool(key string) (bool, error) {
	v, err := s.get(key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(v)
}

func (s *MemStore) SetBool(key string, v bool) error {
	s.values[key] = strconv.FormatBool(v)
	return nil
}

func (s *MemStore) GetU8(key string) (uint8, error) {
	v, err := s.get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 8)
	return uint8(n), err
}

func (s *MemStore) SetU8(key string, v uint8) error {
	s.values[key] = strconv.FormatUint(uint64(v), 10)
	return nil
}

func (s *MemStore) GetI8(key string) (int8, error) {
	v, err := s.get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 8)
	return int8(n), err
}

func (s *MemStore) SetI8(key string, v int8) error {
	s.values[key] = strconv.FormatInt(int64(v), 10)
	return nil
}

func (s *MemStore) GetU32(key string) (uint32, error) {
	v, err := s.get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 32)
	return uint32(n), err
}

func (s *MemStore) SetU32(key string, v uint32) error {
	s.values[key] = strconv.FormatUint(uint64(v), 10)
	return nil
}

func (s *MemStore) GetString(key string) (string, error) {
	return s.get(key)
}

func (s *MemStore) SetString(key string, v string) error {
	s.values[key] = v
	return nil
}

func (s *MemStore) Delete(key string) error {
	delete(s.values, key)
	return nil
}

func (s *MemStore) Commit() error {
	return nil
}

// FakeSensor produces gently moving room conditions so the display
// pages have something to show. Temperature walks a triangle between
// 21 and 23 degrees over ten minutes; humidity sits near 45 percent.
type FakeSensor struct{}

func (FakeSensor) Read() (int32, int32, error) {
	cycle := core.Millis() % 600000
	half := uint32(300000)
	var frac uint32
	if cycle < half {
		frac = cycle
	} else {
		frac = 600000 - cycle
	}
	temp := int32(21000 + frac*2000/half)
	humidity := int32(45000 + int32(frac)*3000/int32(half))
	return temp, humidity, nil
}
