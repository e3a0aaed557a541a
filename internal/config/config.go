package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by LoadProfile.
const (
	DefaultSleepCycle    = 2
	DefaultSnoozeMinutes = 10
	DefaultTimeout       = 15 * time.Second
	DefaultRetries       = 2
	DefaultDebounce      = 10 * time.Minute
	DefaultSchedule      = "*/15 * * * *"
	DefaultRetryInterval = time.Minute
)

// Duration is a time.Duration written as "10m" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Global is ~/.prompt/config.toml.
type Global struct {
	DefaultProfile string `toml:"default_profile"`
}

// Profile is the per-profile profile.toml.
type Profile struct {
	Service Service `toml:"service"`
	Account Account `toml:"account"`
	Sync    Sync    `toml:"sync"`
	Prompt  Prompt  `toml:"prompt"`
}

type Service struct {
	BaseURL      string   `toml:"base_url,omitempty"`
	DirectoryURL string   `toml:"directory_url,omitempty"`
	Timeout      Duration `toml:"timeout"`
	Retries      int      `toml:"retries"`
}

// Account holds the registration handed out by the service. Solo accounts
// have no ticket and get a synthetic device id.
type Account struct {
	AcctID     int64  `toml:"acct_id"`
	Ticket     string `toml:"ticket"`
	Unique     string `toml:"unique"`
	Display    string `toml:"display"`
	Timezone   string `toml:"timezone"`
	SleepCycle int    `toml:"sleep_cycle"`
	Device     string `toml:"device"`
}

type Sync struct {
	Debounce Duration `toml:"debounce"`
	Schedule string   `toml:"schedule"`
	Contacts string   `toml:"contacts,omitempty"`
}

type Prompt struct {
	Snooze        int      `toml:"snooze"`
	RetryInterval Duration `toml:"retry_interval"`
}

// SnoozeDuration is the snooze setting as a duration.
func (p Prompt) SnoozeDuration() time.Duration {
	return time.Duration(p.Snooze) * time.Minute
}

// Registered reports whether the account can talk to the service.
func (a Account) Registered() bool {
	return a.Ticket != "" && a.AcctID > 0
}

// NewProfile returns a profile with every default filled in.
func NewProfile() *Profile {
	p := &Profile{}
	p.applyDefaults()
	return p
}

func (p *Profile) applyDefaults() {
	if p.Service.Timeout.Duration <= 0 {
		p.Service.Timeout.Duration = DefaultTimeout
	}
	if p.Service.Retries < 0 {
		p.Service.Retries = 0
	}
	if p.Account.SleepCycle == 0 {
		p.Account.SleepCycle = DefaultSleepCycle
	}
	if p.Sync.Debounce.Duration <= 0 {
		p.Sync.Debounce.Duration = DefaultDebounce
	}
	if p.Sync.Schedule == "" {
		p.Sync.Schedule = DefaultSchedule
	}
	if p.Prompt.Snooze <= 0 {
		p.Prompt.Snooze = DefaultSnoozeMinutes
	}
	if p.Prompt.RetryInterval.Duration <= 0 {
		p.Prompt.RetryInterval.Duration = DefaultRetryInterval
	}
}

// LoadGlobal reads the global config. A missing file yields the zero value.
func LoadGlobal(path string) (*Global, error) {
	var cfg Global
	if err := decode(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProfile reads a profile config with defaults applied. A missing file
// yields the defaults.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{Service: Service{Retries: DefaultRetries}}
	if err := decode(path, p); err != nil {
		return nil, err
	}
	p.applyDefaults()
	return p, nil
}

func decode(path string, v any) error {
	_, err := toml.DecodeFile(path, v)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Save writes cfg to path, creating parent dirs as needed.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
