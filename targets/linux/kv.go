//go:build linux

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileStore implements the KV interface on a plain text file, one
// "key=value" line per entry with Go-quoted string values. Reads and
// writes go against a RAM mirror; Commit rewrites the file atomically
// through a temp file in the same directory.
type FileStore struct {
	path   string
	values map[string]string
}

var errKeyNotFound = errors.New("key not found")

// NewFileStore loads the file at path. A missing file yields an empty
// store; the first Commit creates it.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		s.values[line[:eq]] = line[eq+1:]
	}
	return s, sc.Err()
}

func (s *FileStore) get(key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", errKeyNotFound
	}
	return v, nil
}

func (s *FileStore) GetBool(key string) (bool, error) {
	v, err := s.get(key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(v)
}

func (s *FileStore) SetBool(key string, v bool) error {
	s.values[key] = strconv.FormatBool(v)
	return nil
}

func (s *FileStore) GetU8(key string) (uint8, error) {
	v, err := s.get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 8)
	return uint8(n), err
}

func (s *FileStore) SetU8(key string, v uint8) error {
	s.values[key] = strconv.FormatUint(uint64(v), 10)
	return nil
}

func (s *FileStore) GetI8(key string) (int8, error) {
	v, err := s.get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 8)
	return int8(n), err
}

func (s *FileStore) SetI8(key string, v int8) error {
	s.values[key] = strconv.FormatInt(int64(v), 10)
	return nil
}

func (s *FileStore) GetU32(key string) (uint32, error) {
	v, err := s.get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 32)
	return uint32(n), err
}

func (s *FileStore) SetU32(key string, v uint32) error {
	s.values[key] = strconv.FormatUint(uint64(v), 10)
	return nil
}

func (s *FileStore) GetString(key string) (string, error) {
	v, err := s.get(key)
	if err != nil {
		return "", err
	}
	return strconv.Unquote(v)
}

func (s *FileStore) SetString(key string, v string) error {
	// Quoting keeps newlines and '=' out of the line format
	s.values[key] = strconv.Quote(v)
	return nil
}

func (s *FileStore) Delete(key string) error {
	delete(s.values, key)
	return nil
}

// Commit rewrites the whole file and fsyncs before renaming it into
// place, so a power cut leaves either the old or the new settings.
func (s *FileStore) Commit() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".clock-kv-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for key, val := range s.values {
		fmt.Fprintf(w, "%s=%s\n", key, val)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
