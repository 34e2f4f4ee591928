// Package config loads the job configuration: defaults, an optional yaml
// file, HARVEST_* environment variables (plus the legacy PROFILES_DB,
// EXCEL_FILE and CHROME_PROFILE_PATH names) and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"chat-harvest-job/internal/adapters"
	"chat-harvest-job/internal/contact"
)

type Config struct {
	ProfileRoot        string        `mapstructure:"profile_root"`
	ProfilesDB         string        `mapstructure:"profiles_db"`
	ProfilesSheet      string        `mapstructure:"profiles_sheet"`
	ConversationsDB    string        `mapstructure:"conversations_db"`
	ConversationsSheet string        `mapstructure:"conversations_sheet"`
	TargetURL          string        `mapstructure:"target_url"`
	Adapter            string        `mapstructure:"adapter"` // web | mock
	Headless           bool          `mapstructure:"headless"`
	ChromePath         string        `mapstructure:"chrome_path"`
	DateLocale         string        `mapstructure:"date_locale"` // ru | en
	Cooldown           time.Duration `mapstructure:"cooldown"`
	OpenTimeout        time.Duration `mapstructure:"open_timeout"`
	ClickTimeout       time.Duration `mapstructure:"click_timeout"`
	TranscriptLimit    int           `mapstructure:"transcript_limit"`
	MetricsAddr        string        `mapstructure:"metrics_addr"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`

	Scroll    ScrollConfig       `mapstructure:"scroll"`
	Contact   ContactConfig      `mapstructure:"contact"`
	Daemon    DaemonConfig       `mapstructure:"daemon"`
	Log       LogConfig          `mapstructure:"log"`
	PG        PGConfig           `mapstructure:"pg"`
	Mock      MockConfig         `mapstructure:"mock"`
	Selectors adapters.Selectors `mapstructure:"selectors"`
}

type ScrollConfig struct {
	Step          float64       `mapstructure:"step"`
	Settle        time.Duration `mapstructure:"settle"`
	Threshold     int           `mapstructure:"threshold"`
	LoadMoreGrace time.Duration `mapstructure:"load_more_grace"`
}

type ContactConfig struct {
	Grace            time.Duration `mapstructure:"grace"`
	OfficialSentinel string        `mapstructure:"official_sentinel"`
	OfficialSelector string        `mapstructure:"official_selector"`
	AnchorSelector   string        `mapstructure:"anchor_selector"`
	PhonePrefix      string        `mapstructure:"phone_prefix"`
}

// Selectors returns the panel selectors for contact.NewExtractor.
func (c ContactConfig) Selectors() contact.Selectors {
	return contact.Selectors{Official: c.OfficialSelector, Anchor: c.AnchorSelector, PhonePrefix: c.PhonePrefix}
}

type DaemonConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type PGConfig struct {
	Schema   string `mapstructure:"schema"`
	MaxConns int    `mapstructure:"max_conns"`
}

type MockConfig struct {
	Chats int   `mapstructure:"chats"`
	Seed  int64 `mapstructure:"seed"`
}

func Default() Config {
	cs := contact.DefaultSelectors()
	return Config{
		ProfileRoot:        "./profiles",
		ProfilesDB:         "profiles.xlsx",
		ProfilesSheet:      "Sheet1",
		ConversationsDB:    "chats.xlsx",
		ConversationsSheet: "Chats",
		TargetURL:          "https://web.whatsapp.com",
		Adapter:            "web",
		Headless:           false,
		DateLocale:         "ru",
		Cooldown:           2 * time.Hour,
		OpenTimeout:        30 * time.Second,
		ClickTimeout:       10 * time.Second,
		TranscriptLimit:    32767,
		LockTTL:            6 * time.Hour,
		Scroll: ScrollConfig{
			Step:          500,
			Settle:        500 * time.Millisecond,
			Threshold:     3,
			LoadMoreGrace: 3 * time.Second,
		},
		Contact: ContactConfig{
			Grace:            2 * time.Second,
			OfficialSentinel: contact.DefaultOfficialSentinel,
			OfficialSelector: cs.Official,
			AnchorSelector:   cs.Anchor,
			PhonePrefix:      cs.PhonePrefix,
		},
		Daemon:    DaemonConfig{Schedule: "@every 10m"},
		Log:       LogConfig{Level: "info"},
		PG:        PGConfig{Schema: "public", MaxConns: 2},
		Mock:      MockConfig{Chats: 12},
		Selectors: adapters.DefaultSelectors(),
	}
}

// legacyEnv maps keys to the environment names older deployments used.
var legacyEnv = map[string]string{
	"profiles_db":      "PROFILES_DB",
	"conversations_db": "EXCEL_FILE",
	"profile_root":     "CHROME_PROFILE_PATH",
}

// LoadOptions says where Load looks besides defaults and the environment.
type LoadOptions struct {
	// File is an explicit config file. When empty, ./chat-harvest.yaml is
	// read if present.
	File string
	// Flags are bound by FlagKeys (flag name -> config key). Only flags the
	// user actually set override lower layers.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, "HARVEST_"+strings.ToUpper(key), legacy)
	}
	return v
}

func Load(opts LoadOptions) (Config, error) {
	v := newViper()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("chat-harvest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range opts.FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ProfileRoot = expandHome(cfg.ProfileRoot)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations no component can run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ProfilesDB) == "" {
		errs = append(errs, errors.New("profiles_db is required"))
	}
	if strings.TrimSpace(c.ConversationsDB) == "" {
		errs = append(errs, errors.New("conversations_db is required"))
	}
	switch c.Adapter {
	case "web":
		if strings.TrimSpace(c.TargetURL) == "" {
			errs = append(errs, errors.New("target_url is required for the web adapter"))
		}
		if strings.TrimSpace(c.ProfileRoot) == "" {
			errs = append(errs, errors.New("profile_root is required for the web adapter"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("invalid adapter: %s (must be web or mock)", c.Adapter))
	}
	switch strings.ToLower(c.DateLocale) {
	case "ru", "russian", "en", "english":
	default:
		errs = append(errs, fmt.Errorf("invalid date_locale: %s (must be ru or en)", c.DateLocale))
	}
	if c.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown must not be negative"))
	}
	if c.TranscriptLimit < 0 {
		errs = append(errs, errors.New("transcript_limit must not be negative"))
	}
	if c.Scroll.Threshold < 1 {
		errs = append(errs, errors.New("scroll.threshold must be at least 1"))
	}
	if c.Scroll.Step <= 0 {
		errs = append(errs, errors.New("scroll.step must be positive"))
	}
	return errors.Join(errs...)
}

// WriteDefault writes the default configuration as yaml to path. Durations
// are written in their string form ("2h0m0s") so the file reads back.
func WriteDefault(path string) error {
	settings := normalize(newViper().AllSettings())
	b, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("profile_root", c.ProfileRoot)
	v.SetDefault("profiles_db", c.ProfilesDB)
	v.SetDefault("profiles_sheet", c.ProfilesSheet)
	v.SetDefault("conversations_db", c.ConversationsDB)
	v.SetDefault("conversations_sheet", c.ConversationsSheet)
	v.SetDefault("target_url", c.TargetURL)
	v.SetDefault("adapter", c.Adapter)
	v.SetDefault("headless", c.Headless)
	v.SetDefault("chrome_path", c.ChromePath)
	v.SetDefault("date_locale", c.DateLocale)
	v.SetDefault("cooldown", c.Cooldown)
	v.SetDefault("open_timeout", c.OpenTimeout)
	v.SetDefault("click_timeout", c.ClickTimeout)
	v.SetDefault("transcript_limit", c.TranscriptLimit)
	v.SetDefault("metrics_addr", c.MetricsAddr)
	v.SetDefault("lock_ttl", c.LockTTL)

	v.SetDefault("scroll.step", c.Scroll.Step)
	v.SetDefault("scroll.settle", c.Scroll.Settle)
	v.SetDefault("scroll.threshold", c.Scroll.Threshold)
	v.SetDefault("scroll.load_more_grace", c.Scroll.LoadMoreGrace)

	v.SetDefault("contact.grace", c.Contact.Grace)
	v.SetDefault("contact.official_sentinel", c.Contact.OfficialSentinel)
	v.SetDefault("contact.official_selector", c.Contact.OfficialSelector)
	v.SetDefault("contact.anchor_selector", c.Contact.AnchorSelector)
	v.SetDefault("contact.phone_prefix", c.Contact.PhonePrefix)

	v.SetDefault("daemon.schedule", c.Daemon.Schedule)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.json", c.Log.JSON)
	v.SetDefault("pg.schema", c.PG.Schema)
	v.SetDefault("pg.max_conns", c.PG.MaxConns)
	v.SetDefault("mock.chats", c.Mock.Chats)
	v.SetDefault("mock.seed", c.Mock.Seed)

	s := c.Selectors
	v.SetDefault("selectors.chat_list", s.ChatList)
	v.SetDefault("selectors.chat_area", s.ChatArea)
	v.SetDefault("selectors.chat_content", s.ChatContent)
	v.SetDefault("selectors.chat_row", s.ChatRow)
	v.SetDefault("selectors.load_more", s.LoadMore)
	v.SetDefault("selectors.profile_button", s.ProfileButton)
	v.SetDefault("selectors.panel_root", s.PanelRoot)
	v.SetDefault("selectors.row_at_offset", s.RowAtOffset)
}

// normalize turns durations into their string form.
func normalize(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case time.Duration:
			out[k] = x.String()
		case map[string]any:
			out[k] = normalize(x)
		default:
			out[k] = v
		}
	}
	return out
}

// Keys lists every configuration key, for help output.
func Keys() []string {
	keys := newViper().AllKeys()
	sort.Strings(keys)
	return keys
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
