package profile

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the data root.
const HomeEnv = "PROMPT_HOME"

// BaseDir returns $PROMPT_HOME, or ~/.prompt when unset.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".prompt")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the control socket of a profile's daemon.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "promptd.sock")
}

func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the local cache database.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "prompt.db")
}

// ConfigPath returns the profile's profile.toml.
func ConfigPath(name string) string {
	return filepath.Join(Dir(name), "profile.toml")
}

func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

func LogPath(name string) string {
	return filepath.Join(LogDir(name), "promptd.log")
}

// GlobalConfigPath returns the config.toml shared by all profiles.
func GlobalConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
