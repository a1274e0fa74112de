package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	gosync "sync"

	"gopkg.in/yaml.v3"
)

// Well-known keys read by the configuration layer
const (
	KeyDirectoryAccessTimeout = "DirectoryAccessTimeout"
	KeyLocationsCentral       = "LocationsCentral"
	KeyLocalCommonRoot        = "LocalCommonRoot"
	KeyLocalUserRoot          = "LocalUserRoot"
	KeySavedOffice            = "SavedOffice"
)

// ErrTypeMismatch is returned when a value is read as the wrong kind
var ErrTypeMismatch = errors.New("settings value has a different type")

// Kind identifies the type held by a Value
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
)

// Value is a typed settings value, mirroring registry REG_SZ / REG_DWORD entries
type Value struct {
	kind Kind
	s    string
	i    int
	b    bool
}

// String creates a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int creates an integer value
func Int(i int) Value { return Value{kind: KindInt, i: i} }

// Bool creates a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the type of the value
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string payload
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", ErrTypeMismatch
	}
	return v.s, nil
}

// AsInt returns the integer payload. Booleans convert to 0/1 the way a DWORD flag does.
func (v Value) AsInt() (int, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, ErrTypeMismatch
	}
}

// AsBool returns the boolean payload. Non-zero integers are true.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i != 0, nil
	default:
		return false, ErrTypeMismatch
	}
}

func (v Value) GoString() string {
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return strconv.Quote(v.s)
	}
}

// MarshalYAML stores the value as its native YAML scalar
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindBool:
		return v.b, nil
	default:
		return v.s, nil
	}
}

// UnmarshalYAML infers the kind from the YAML scalar tag
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("settings value must be a scalar, got %v at line %d", node.Tag, node.Line)
	}
	switch node.ShortTag() {
	case "!!int":
		var i int
		if err := node.Decode(&i); err != nil {
			return err
		}
		*v = Int(i)
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	default:
		*v = String(node.Value)
	}
	return nil
}

// Store provides typed key/value settings (the registry on the launcher's host)
type Store interface {
	// Value returns the value stored under key
	Value(key string) (Value, bool)
	// Set stores a value under key
	Set(key string, v Value) error
}

// GetString reads a string value, reporting false when missing or mistyped
func GetString(s Store, key string) (string, bool) {
	v, ok := s.Value(key)
	if !ok {
		return "", false
	}
	str, err := v.AsString()
	if err != nil {
		return "", false
	}
	return str, true
}

// GetInt reads an integer value, reporting false when missing or mistyped
func GetInt(s Store, key string) (int, bool) {
	v, ok := s.Value(key)
	if !ok {
		return 0, false
	}
	i, err := v.AsInt()
	if err != nil {
		return 0, false
	}
	return i, true
}

// GetBool reads a boolean value, reporting false when missing or mistyped
func GetBool(s Store, key string) (bool, bool) {
	v, ok := s.Value(key)
	if !ok {
		return false, false
	}
	b, err := v.AsBool()
	if err != nil {
		return false, false
	}
	return b, true
}

// SplitList splits a semicolon-delimited list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MapStore is an in-memory Store
type MapStore struct {
	mu     gosync.RWMutex
	values map[string]Value
}

// NewMapStore creates a store seeded with values
func NewMapStore(values map[string]Value) *MapStore {
	m := &MapStore{values: make(map[string]Value, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Value implements Store
func (m *MapStore) Value(key string) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set implements Store
func (m *MapStore) Set(key string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
	return nil
}

// Keys returns the stored keys in sorted order
func (m *MapStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FileStore persists settings as a flat YAML mapping. Every Set rewrites the
// file atomically.
type FileStore struct {
	path string
	mem  *MapStore
}

// OpenFileStore loads the settings file at path. A missing file yields an
// empty store that is created on the first Set.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMapStore(nil)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	values := make(map[string]Value)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	fs.mem = NewMapStore(values)
	return fs, nil
}

// Path returns the backing file path
func (f *FileStore) Path() string {
	return f.path
}

// Value implements Store
func (f *FileStore) Value(key string) (Value, bool) {
	return f.mem.Value(key)
}

// Set implements Store
func (f *FileStore) Set(key string, v Value) error {
	if err := f.mem.Set(key, v); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) save() error {
	f.mem.mu.RLock()
	data, err := yaml.Marshal(f.mem.values)
	f.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
