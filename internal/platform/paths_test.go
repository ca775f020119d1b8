package platform

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestPathsFor verifies per-OS resolution of config, database and log locations.
func TestPathsFor(t *testing.T) {
	tests := []struct {
		name string
		goos string
		env  map[string]string
		cfg  string
		data string
		want Paths
	}{
		{
			name: "linux xdg",
			goos: "linux",
			env: map[string]string{
				"XDG_CONFIG_HOME": "/xdg/config",
				"XDG_DATA_HOME":   "/xdg/data",
				"XDG_STATE_HOME":  "/xdg/state",
			},
			cfg:  "/fallback/config",
			data: "/fallback/data",
			want: Paths{
				ConfigPath: filepath.Join("/xdg/config", "labbook", "config.toml"),
				DataDir:    filepath.Join("/xdg/data", "labbook"),
				DBPath:     filepath.Join("/xdg/data", "labbook", "labbook.db"),
				LogDir:     filepath.Join("/xdg/state", "labbook"),
			},
		},
		{
			name: "linux without xdg",
			goos: "linux",
			cfg:  "/home/me/.config",
			data: "/home/me/.local/share",
			want: Paths{
				ConfigPath: filepath.Join("/home/me/.config", "labbook", "config.toml"),
				DataDir:    filepath.Join("/home/me/.local/share", "labbook"),
				DBPath:     filepath.Join("/home/me/.local/share", "labbook", "labbook.db"),
				LogDir:     filepath.Join("/home/me/.local/share", "labbook", "logs"),
			},
		},
		{
			name: "windows appdata",
			goos: "windows",
			env: map[string]string{
				"APPDATA":      `C:\Users\me\AppData\Roaming`,
				"LOCALAPPDATA": `C:\Users\me\AppData\Local`,
			},
			cfg:  `C:\fallback\config`,
			data: `C:\fallback\data`,
			want: Paths{
				ConfigPath: filepath.Join(`C:\Users\me\AppData\Roaming`, "labbook", "config.toml"),
				DataDir:    filepath.Join(`C:\Users\me\AppData\Local`, "labbook"),
				DBPath:     filepath.Join(`C:\Users\me\AppData\Local`, "labbook", "labbook.db"),
				LogDir:     filepath.Join(`C:\Users\me\AppData\Local`, "labbook", "logs"),
			},
		},
		{
			name: "darwin ignores xdg",
			goos: "darwin",
			env: map[string]string{
				"XDG_CONFIG_HOME": "/ignored",
				"XDG_DATA_HOME":   "/ignored",
			},
			cfg:  "/Users/me/Library/Application Support",
			data: "/Users/me/Library/Application Support",
			want: Paths{
				ConfigPath: filepath.Join("/Users/me/Library/Application Support", "labbook", "config.toml"),
				DataDir:    filepath.Join("/Users/me/Library/Application Support", "labbook"),
				DBPath:     filepath.Join("/Users/me/Library/Application Support", "labbook", "labbook.db"),
				LogDir:     filepath.Join("/Users/me/Library/Application Support", "labbook", "logs"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathsFor(tt.goos, tt.env, tt.cfg, tt.data, DefaultAppName)
			if err != nil {
				t.Fatalf("PathsFor() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("PathsFor() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestPathsForRejectsEmptyInputs verifies base dirs and app name are required.
func TestPathsForRejectsEmptyInputs(t *testing.T) {
	if _, err := PathsFor("darwin", nil, "", "/tmp/data", "labbook"); err == nil {
		t.Fatal("expected error for empty dirs")
	}
	if _, err := PathsFor("darwin", nil, "/tmp/config", "/tmp/data", "  "); err == nil {
		t.Fatal("expected error for empty app name")
	}
}

// TestDefaultPathsWithOptionsDevMode verifies dev mode isolates directories.
func TestDefaultPathsWithOptionsDevMode(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	p, err := DefaultPathsWithOptions(Options{AppName: "labbook", DevMode: true})
	if err != nil {
		t.Fatalf("DefaultPathsWithOptions() error = %v", err)
	}
	if filepath.Base(p.DBPath) != "labbook-dev.db" {
		t.Fatalf("unexpected dev db path %q", p.DBPath)
	}
	if filepath.Base(filepath.Dir(p.ConfigPath)) != "labbook-dev" {
		t.Fatalf("unexpected dev config path %q", p.ConfigPath)
	}
}
