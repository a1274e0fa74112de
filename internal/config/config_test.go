package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/schaermu/cadsync/internal/compare"
	"github.com/schaermu/cadsync/internal/office"
	"github.com/schaermu/cadsync/internal/settings"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
paths:
  central: ["//server/share/_TechSTND", "/mnt/i/_TechSTND"]
  local_common: "/opt/cadsync/common"
  local_user: "/home/user/.local/share/cadsync"

office:
  region: AUS
  directory: Denver

offices:
  api_url: "https://example.invalid/offices"
  fetch_timeout: 5s

sync:
  directory_access_timeout: 7
  compare: window
  exclude: ["**/Thumbs.db"]

events:
  log_info: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Paths.Central) != 2 || cfg.Paths.Central[0] != "//server/share/_TechSTND" {
		t.Errorf("unexpected central paths: %v", cfg.Paths.Central)
	}
	if cfg.OfficeID() != "AUS-Denver" {
		t.Errorf("expected office AUS-Denver, got %s", cfg.OfficeID())
	}
	if cfg.DirectoryAccessTimeout() != 7*time.Second {
		t.Errorf("expected 7s timeout, got %v", cfg.DirectoryAccessTimeout())
	}
	if cfg.Offices.FetchTimeout != 5*time.Second {
		t.Errorf("expected 5s fetch timeout, got %v", cfg.Offices.FetchTimeout)
	}
	if cfg.Sync.ModTimeWindow != DefaultModTimeWindow {
		t.Errorf("window mode should default the window, got %v", cfg.Sync.ModTimeWindow)
	}
	if !cfg.SyncEnabled() {
		t.Error("sync should be enabled by default")
	}
	if !cfg.Events.LogInfo {
		t.Error("expected events.log_info to be true")
	}
}

func TestLoad_CentralAsDelimitedString(t *testing.T) {
	path := writeConfig(t, `
paths:
  central: "//srv/a; /mnt/b ;"
  local_common: /opt/common
  local_user: /home/u/cad
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"//srv/a", "/mnt/b"}
	if !reflect.DeepEqual([]string(cfg.Paths.Central), want) {
		t.Errorf("Central = %v, want %v", cfg.Paths.Central, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "paths: [unterminated")); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := Load(writeConfig(t, "paths:\n  central: {a: b}\n")); err == nil {
		t.Error("expected error for a mapping in paths.central")
	}
}

func validConfig() Config {
	cfg := Config{
		Paths: PathsConfig{
			LocalCommon: "/opt/common",
			LocalUser:   "/home/u/cad",
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing local common", mutate: func(c *Config) { c.Paths.LocalCommon = "" }, wantErr: true},
		{name: "missing local user", mutate: func(c *Config) { c.Paths.LocalUser = "" }, wantErr: true},
		{name: "relative local user", mutate: func(c *Config) { c.Paths.LocalUser = "cad" }, wantErr: true},
		{name: "empty central entry", mutate: func(c *Config) { c.Paths.Central = PathList{"/a", " "} }, wantErr: true},
		{name: "missing office directory", mutate: func(c *Config) { c.Office.Directory = "" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Sync.DirectoryAccessTimeout = -1 }, wantErr: true},
		{name: "unknown compare mode", mutate: func(c *Config) { c.Sync.Compare = "fuzzy" }, wantErr: true},
		{
			name: "window mode without window",
			mutate: func(c *Config) {
				c.Sync.Compare = compare.ModeWindow
				c.Sync.ModTimeWindow = 0
			},
			wantErr: true,
		},
		{name: "bad exclude pattern", mutate: func(c *Config) { c.Sync.Exclude = []string{"[oops"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.Sync.DirectoryAccessTimeout != DefaultDirectoryAccessTimeout {
		t.Errorf("applyDefaults() timeout = %d, want %d", cfg.Sync.DirectoryAccessTimeout, DefaultDirectoryAccessTimeout)
	}
	if cfg.Sync.Compare != compare.ModeExact {
		t.Errorf("applyDefaults() compare = %q, want exact", cfg.Sync.Compare)
	}
	if cfg.OfficeID() != office.FallbackID {
		t.Errorf("applyDefaults() office = %s, want %s", cfg.OfficeID(), office.FallbackID)
	}
	if len(cfg.Sync.Exclude) != 1 || cfg.Sync.Exclude[0] != "**/.*" {
		t.Errorf("applyDefaults() exclude = %v, want dot entries skipped", cfg.Sync.Exclude)
	}

	// Explicit values must not be overwritten
	disabled := false
	cfg2 := Config{Sync: SyncConfig{Enabled: &disabled, DirectoryAccessTimeout: 3}}
	cfg2.applyDefaults()
	if cfg2.SyncEnabled() {
		t.Error("applyDefaults() overwrote explicit enabled=false")
	}
	if cfg2.Sync.DirectoryAccessTimeout != 3 {
		t.Errorf("applyDefaults() overwrote explicit timeout, got %d", cfg2.Sync.DirectoryAccessTimeout)
	}

	// An explicit empty exclude list keeps dot entries in scope
	cfg3 := Config{Sync: SyncConfig{Exclude: []string{}}}
	cfg3.applyDefaults()
	if len(cfg3.Sync.Exclude) != 0 {
		t.Errorf("applyDefaults() replaced an explicit empty exclude list: %v", cfg3.Sync.Exclude)
	}
}

func TestApplySettings(t *testing.T) {
	cfg := validConfig()
	cfg.Paths.Central = PathList{"/from/file"}

	store := settings.NewMapStore(map[string]settings.Value{
		settings.KeyDirectoryAccessTimeout: settings.Int(4),
		settings.KeyLocationsCentral:       settings.String("/srv/a;/srv/b"),
		settings.KeyLocalUserRoot:          settings.String("/home/other/cad"),
		settings.KeySavedOffice:            settings.String("AGB-London"),
	})

	if err := cfg.ApplySettings(store); err != nil {
		t.Fatalf("ApplySettings failed: %v", err)
	}

	if cfg.Sync.DirectoryAccessTimeout != 4 {
		t.Errorf("timeout = %d, want 4", cfg.Sync.DirectoryAccessTimeout)
	}
	if !reflect.DeepEqual([]string(cfg.Paths.Central), []string{"/srv/a", "/srv/b"}) {
		t.Errorf("central = %v", cfg.Paths.Central)
	}
	if cfg.Paths.LocalUser != "/home/other/cad" {
		t.Errorf("local user = %s", cfg.Paths.LocalUser)
	}
	if cfg.Paths.LocalCommon != "/opt/common" {
		t.Errorf("local common should be untouched, got %s", cfg.Paths.LocalCommon)
	}
	if cfg.OfficeID() != "AGB-London" {
		t.Errorf("office = %s, want AGB-London", cfg.OfficeID())
	}
}

func TestApplySettings_Invalid(t *testing.T) {
	cfg := validConfig()
	store := settings.NewMapStore(map[string]settings.Value{
		settings.KeyLocalCommonRoot: settings.String("relative/path"),
	})
	if err := cfg.ApplySettings(store); err == nil {
		t.Error("expected validation error for a relative local common root")
	}

	cfg = validConfig()
	if err := cfg.ApplySettings(nil); err != nil {
		t.Errorf("nil store should be a no-op, got %v", err)
	}
}

func TestSyncContext(t *testing.T) {
	cfg := validConfig()
	cfg.Paths.Central = PathList{"/srv/std"}
	cfg.Sync.Exclude = []string{"**/*.bak"}

	list := office.List{office.Fallback()}
	o, err := cfg.ActiveOffice(list)
	if err != nil {
		t.Fatal(err)
	}
	if o.DisplayName != "Toronto" {
		t.Errorf("active office should come from the list, got %q", o.DisplayName)
	}

	sc := cfg.SyncContext(o)
	if sc.Roots.LocalCommon != "/opt/common" || sc.Roots.LocalUser != "/home/u/cad" {
		t.Errorf("unexpected roots: %+v", sc.Roots)
	}
	if len(sc.Roots.Central) != 1 || sc.Roots.Central[0] != "/srv/std" {
		t.Errorf("unexpected central roots: %v", sc.Roots.Central)
	}
	if sc.DirectoryAccessTimeout != 20*time.Second {
		t.Errorf("timeout = %v", sc.DirectoryAccessTimeout)
	}
	if !sc.Enabled {
		t.Error("expected enabled sync context")
	}

	// the context owns its slices
	cfg.Sync.Exclude[0] = "changed"
	if sc.Exclude[0] != "**/*.bak" {
		t.Error("SyncContext should copy the exclude list")
	}
}

func TestActiveOffice_NotInList(t *testing.T) {
	cfg := validConfig()
	cfg.Office = OfficeConfig{Region: "AIN", Directory: "Pune"}

	o, err := cfg.ActiveOffice(nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.ID != "AIN-Pune" || o.Region.DisplayName != "India" {
		t.Errorf("unexpected office %+v", o)
	}
}

func TestOfficeLoader(t *testing.T) {
	cfg := validConfig()
	if l := cfg.OfficeLoader(); l.API != nil {
		t.Error("no api source expected without api_url")
	}
	cfg.Offices.APIURL = "https://example.invalid/offices"
	if l := cfg.OfficeLoader(); l.API == nil {
		t.Error("expected api source")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CADSYNC_TEST_HOME", "/home/testuser")

	cfg := Config{
		Paths: PathsConfig{
			Central:     PathList{"${CADSYNC_TEST_HOME}/central"},
			LocalCommon: "${CADSYNC_TEST_HOME}/common",
			LocalUser:   "${CADSYNC_TEST_HOME}/.local/share/cadsync",
		},
		Offices: OfficesConfig{
			APIURL:        "https://example.invalid/${CADSYNC_TEST_HOME}",
			InstalledFile: "${CADSYNC_TEST_HOME}/installed.json",
			UserFile:      "${CADSYNC_TEST_HOME}/user.json",
		},
		SettingsFile: "${CADSYNC_TEST_HOME}/settings.yaml",
	}

	cfg.expandEnv()

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Paths.Central[0]", cfg.Paths.Central[0], "/home/testuser/central"},
		{"Paths.LocalCommon", cfg.Paths.LocalCommon, "/home/testuser/common"},
		{"Paths.LocalUser", cfg.Paths.LocalUser, "/home/testuser/.local/share/cadsync"},
		{"Offices.APIURL", cfg.Offices.APIURL, "https://example.invalid//home/testuser"},
		{"Offices.InstalledFile", cfg.Offices.InstalledFile, "/home/testuser/installed.json"},
		{"Offices.UserFile", cfg.Offices.UserFile, "/home/testuser/user.json"},
		{"SettingsFile", cfg.SettingsFile, "/home/testuser/settings.yaml"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}
