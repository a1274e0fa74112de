package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/cadsync/internal/compare"
	"github.com/schaermu/cadsync/internal/office"
	"github.com/schaermu/cadsync/internal/settings"
	"github.com/schaermu/cadsync/internal/sync"
)

const (
	// DefaultDirectoryAccessTimeout is the probe timeout in seconds
	DefaultDirectoryAccessTimeout = 20
	// DefaultModTimeWindow is used by the window compare mode when unset
	DefaultModTimeWindow = 2 * time.Second
)

// DefaultExclude skips dot-prefixed entries (VCS metadata, editor files).
// An explicit empty list in the config disables it.
var DefaultExclude = []string{"**/.*"}

// Config represents the complete cadsync configuration
type Config struct {
	Paths        PathsConfig   `yaml:"paths"`
	Office       OfficeConfig  `yaml:"office"`
	Offices      OfficesConfig `yaml:"offices"`
	Sync         SyncConfig    `yaml:"sync"`
	Events       EventsConfig  `yaml:"events"`
	SettingsFile string        `yaml:"settings_file"`
}

// PathList is a list of paths written either as a YAML sequence or as a
// single semicolon-delimited string
type PathList []string

// UnmarshalYAML accepts both forms
func (p *PathList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = settings.SplitList(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or a semicolon-delimited string", node.Line)
	}
}

// PathsConfig configures the standards roots
type PathsConfig struct {
	Central     PathList `yaml:"central"`
	LocalCommon string   `yaml:"local_common"`
	LocalUser   string   `yaml:"local_user"`
}

// OfficeConfig selects the active office
type OfficeConfig struct {
	Region    string `yaml:"region"`
	Directory string `yaml:"directory"`
}

// OfficesConfig configures where the office list is loaded from
type OfficesConfig struct {
	APIURL        string        `yaml:"api_url"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	InstalledFile string        `yaml:"installed_file"`
	UserFile      string        `yaml:"user_file"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	Enabled                *bool         `yaml:"enabled"`
	DirectoryAccessTimeout int           `yaml:"directory_access_timeout"`
	Compare                compare.Mode  `yaml:"compare"`
	ModTimeWindow          time.Duration `yaml:"mod_time_window"`
	Exclude                []string      `yaml:"exclude"`
}

// EventsConfig configures the operator event sink
type EventsConfig struct {
	LogInfo bool `yaml:"log_info"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all path fields
func (c *Config) expandEnv() {
	for i, p := range c.Paths.Central {
		c.Paths.Central[i] = os.ExpandEnv(p)
	}
	c.Paths.LocalCommon = os.ExpandEnv(c.Paths.LocalCommon)
	c.Paths.LocalUser = os.ExpandEnv(c.Paths.LocalUser)
	c.Offices.APIURL = os.ExpandEnv(c.Offices.APIURL)
	c.Offices.InstalledFile = os.ExpandEnv(c.Offices.InstalledFile)
	c.Offices.UserFile = os.ExpandEnv(c.Offices.UserFile)
	c.SettingsFile = os.ExpandEnv(c.SettingsFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Sync.Enabled == nil {
		enabled := true
		c.Sync.Enabled = &enabled
	}
	if c.Sync.DirectoryAccessTimeout == 0 {
		c.Sync.DirectoryAccessTimeout = DefaultDirectoryAccessTimeout
	}
	if c.Sync.Compare == "" {
		c.Sync.Compare = compare.ModeExact
	}
	if c.Sync.Compare == compare.ModeWindow && c.Sync.ModTimeWindow == 0 {
		c.Sync.ModTimeWindow = DefaultModTimeWindow
	}
	if c.Sync.Exclude == nil {
		c.Sync.Exclude = append([]string(nil), DefaultExclude...)
	}
	if c.Offices.FetchTimeout == 0 {
		c.Offices.FetchTimeout = office.DefaultFetchTimeout
	}
	if c.Office.Region == "" && c.Office.Directory == "" {
		fb := office.Fallback()
		c.Office.Region = fb.Region.DirectoryName
		c.Office.Directory = fb.DirectoryName
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Paths.LocalCommon == "" {
		return fmt.Errorf("paths.local_common is required")
	}
	if c.Paths.LocalUser == "" {
		return fmt.Errorf("paths.local_user is required")
	}
	if !filepath.IsAbs(c.Paths.LocalCommon) {
		return fmt.Errorf("paths.local_common must be an absolute path: %s", c.Paths.LocalCommon)
	}
	if !filepath.IsAbs(c.Paths.LocalUser) {
		return fmt.Errorf("paths.local_user must be an absolute path: %s", c.Paths.LocalUser)
	}
	for _, p := range c.Paths.Central {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("paths.central must not contain empty entries")
		}
	}

	if c.Office.Region == "" || c.Office.Directory == "" {
		return fmt.Errorf("office.region and office.directory must both be set")
	}

	if c.Sync.DirectoryAccessTimeout < 0 {
		return fmt.Errorf("sync.directory_access_timeout must not be negative: %d", c.Sync.DirectoryAccessTimeout)
	}
	if _, err := compare.ParseMode(string(c.Sync.Compare)); err != nil {
		return fmt.Errorf("sync.compare: %w", err)
	}
	if c.Sync.Compare == compare.ModeWindow && c.Sync.ModTimeWindow <= 0 {
		return fmt.Errorf("sync.mod_time_window must be positive when sync.compare is window")
	}
	for _, p := range c.Sync.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid sync.exclude pattern: %q", p)
		}
	}

	if c.Offices.FetchTimeout < 0 {
		return fmt.Errorf("offices.fetch_timeout must not be negative")
	}

	return nil
}

// SyncEnabled reports whether syncing from the central root is enabled
func (c *Config) SyncEnabled() bool {
	return c.Sync.Enabled == nil || *c.Sync.Enabled
}

// ApplySettings overlays values from the settings store on top of the file
// configuration and re-validates the result
func (c *Config) ApplySettings(store settings.Store) error {
	if store == nil {
		return nil
	}

	if v, ok := settings.GetInt(store, settings.KeyDirectoryAccessTimeout); ok && v > 0 {
		c.Sync.DirectoryAccessTimeout = v
	}
	if v, ok := settings.GetString(store, settings.KeyLocationsCentral); ok {
		if list := settings.SplitList(v); len(list) > 0 {
			c.Paths.Central = list
		}
	}
	if v, ok := settings.GetString(store, settings.KeyLocalCommonRoot); ok && v != "" {
		c.Paths.LocalCommon = os.ExpandEnv(v)
	}
	if v, ok := settings.GetString(store, settings.KeyLocalUserRoot); ok && v != "" {
		c.Paths.LocalUser = os.ExpandEnv(v)
	}
	if v, ok := settings.GetString(store, settings.KeySavedOffice); ok {
		if region, dir, found := strings.Cut(v, "-"); found && region != "" && dir != "" {
			c.Office.Region = region
			c.Office.Directory = dir
		}
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration after applying settings: %w", err)
	}
	return nil
}

// OfficeID returns the REGION-Office identifier of the configured office
func (c *Config) OfficeID() string {
	return c.Office.Region + "-" + c.Office.Directory
}

// ActiveOffice resolves the configured office, preferring the entry from
// list so its display name is used
func (c *Config) ActiveOffice(list office.List) (office.Office, error) {
	if o, ok := list.ByName(c.Office.Directory, c.Office.Region); ok {
		return o, nil
	}
	return office.New(office.Data{RegionDir: c.Office.Region, OfficeDir: c.Office.Directory})
}

// DirectoryAccessTimeout returns the probe timeout as a duration
func (c *Config) DirectoryAccessTimeout() time.Duration {
	return time.Duration(c.Sync.DirectoryAccessTimeout) * time.Second
}

// CompareOptions returns the comparator configuration
func (c *Config) CompareOptions() compare.Options {
	return compare.Options{Mode: c.Sync.Compare, Window: c.Sync.ModTimeWindow}
}

// SyncContext derives the engine context for the given office
func (c *Config) SyncContext(o office.Office) sync.SyncContext {
	return sync.SyncContext{
		Office: o,
		Roots: sync.Roots{
			Central:     append([]string(nil), c.Paths.Central...),
			LocalCommon: c.Paths.LocalCommon,
			LocalUser:   c.Paths.LocalUser,
		},
		DirectoryAccessTimeout: c.DirectoryAccessTimeout(),
		Compare:                c.CompareOptions(),
		Exclude:                append([]string(nil), c.Sync.Exclude...),
		Enabled:                c.SyncEnabled(),
	}
}

// OfficeLoader builds the office list loader from the offices section
func (c *Config) OfficeLoader() *office.Loader {
	l := &office.Loader{
		UserFile:      c.Offices.UserFile,
		InstalledFile: c.Offices.InstalledFile,
	}
	if c.Offices.APIURL != "" {
		l.API = office.NewHTTPSource(c.Offices.APIURL, c.Offices.FetchTimeout)
	}
	return l
}
