// Package config loads allocctl scenario files and assembles the allocator
// stack they describe.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/alloc/block"
	"github.com/joshuapare/blockalloc/internal/mmarena"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Size is a byte count written in YAML as a humanized string such as
// "64KiB" or "1.5MB", or as a plain integer.
type Size uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	n, err := humanize.ParseBytes(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: size %q: %w", value.Line, value.Value, err)
	}
	*s = Size(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	return humanize.IBytes(uint64(s)), nil
}

func (s Size) String() string { return humanize.IBytes(uint64(s)) }

// Arena describes one block allocator and its backing memory.
type Arena struct {
	Size      Size   `yaml:"size"`
	Source    string `yaml:"source"`
	Policy    string `yaml:"policy"`
	Threshold Size   `yaml:"threshold,omitempty"`
	Poison    bool   `yaml:"poison"`
}

// Tracking selects the metrics recorded in front of the stack.
type Tracking struct {
	Name    string   `yaml:"name"`
	Metrics []string `yaml:"metrics"`
}

// Harness configures generated workloads.
type Harness struct {
	Seed           uint64 `yaml:"seed"`
	Requests       int    `yaml:"requests"`
	MaxSize        Size   `yaml:"max_size"`
	MaxAllocations int    `yaml:"max_allocations"`
	Workers        int    `yaml:"workers"`
}

// Config is a complete scenario.
type Config struct {
	Arena        Arena    `yaml:"arena"`
	Fallback     *Arena   `yaml:"fallback,omitempty"`
	Synchronized bool     `yaml:"synchronized"`
	Lock         string   `yaml:"lock"`
	Tracking     Tracking `yaml:"tracking"`
	Harness      Harness  `yaml:"harness"`
}

// Lock kinds accepted in Config.Lock.
const (
	LockMutex = "mutex"
	LockSpin  = "spin"
)

// Default returns the scenario used when no file is given.
func Default() *Config {
	return &Config{
		Arena: Arena{
			Size:      64 << 10,
			Source:    string(mmarena.SourceHeap),
			Policy:    "first-fit",
			Threshold: 256,
		},
		Lock: LockMutex,
		Tracking: Tracking{
			Name:    "arena",
			Metrics: []string{"all"},
		},
		Harness: Harness{
			Seed:           1,
			Requests:       10000,
			MaxSize:        1 << 10,
			MaxAllocations: 128,
			Workers:        4,
		},
	}
}

// Load reads the scenario at path over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a scenario over Default. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Marshal encodes cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every field, reporting the first problem.
func (c *Config) Validate() error {
	if err := c.Arena.validate("arena"); err != nil {
		return err
	}
	if c.Fallback != nil {
		if err := c.Fallback.validate("fallback"); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.Lock) {
	case "", LockMutex, LockSpin:
	default:
		return fmt.Errorf("%w: lock %q (want %s or %s)", ErrInvalid, c.Lock, LockMutex, LockSpin)
	}
	if _, err := alloc.ParseMetricSet(c.Tracking.Metrics); err != nil {
		return fmt.Errorf("%w: tracking: %w", ErrInvalid, err)
	}
	h := c.Harness
	switch {
	case h.Requests < 0:
		return fmt.Errorf("%w: harness.requests must not be negative", ErrInvalid)
	case h.MaxSize == 0:
		return fmt.Errorf("%w: harness.max_size must be positive", ErrInvalid)
	case h.MaxAllocations <= 0:
		return fmt.Errorf("%w: harness.max_allocations must be positive", ErrInvalid)
	case h.Workers <= 0:
		return fmt.Errorf("%w: harness.workers must be positive", ErrInvalid)
	}
	return nil
}

func (a *Arena) validate(field string) error {
	if a.Size == 0 || uint64(a.Size) > uint64(block.MaxArenaSize) {
		return fmt.Errorf("%w: %s.size %s out of range", ErrInvalid, field, a.Size)
	}
	if _, err := mmarena.ParseSource(a.Source); err != nil {
		return fmt.Errorf("%w: %s.source: %w", ErrInvalid, field, err)
	}
	if _, err := block.ParsePolicy(a.Policy, uintptr(a.Threshold)); err != nil {
		return fmt.Errorf("%w: %s.policy: %w", ErrInvalid, field, err)
	}
	return nil
}
