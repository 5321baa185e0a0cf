package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
)

const (
	SourceSheets = "sheets"
	SourceXLSX   = "xlsx"
)

// Snapshot locates one roster snapshot. Sheets sources use Spreadsheet and
// Range, xlsx sources use Path and Sheet.
type Snapshot struct {
	Spreadsheet string
	Range       string
	Path        string
	Sheet       string
}

func (s Snapshot) configured(source string) bool {
	if source == SourceXLSX {
		return s.Path != ""
	}
	return s.Spreadsheet != ""
}

type Config struct {
	App struct {
		Env  string
		Name string
	} `mapstructure:"app"`

	Telegram struct {
		Token       string
		AdminChatID int64  `mapstructure:"admin_chat_id"`
		PollTimeout int    `mapstructure:"poll_timeout"`
		WebhookURL  string `mapstructure:"webhook_url"`
		WebhookPath string `mapstructure:"webhook_path"`
	} `mapstructure:"telegram"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Roster struct {
		Source          string
		CredentialsFile string `mapstructure:"credentials_file"`
		CredentialsJSON string `mapstructure:"credentials_json"`
		Current         Snapshot
		Previous        Snapshot
		HeaderRows      int            `mapstructure:"header_rows"`
		Columns         map[string]int // overrides on top of the default layout
	} `mapstructure:"roster"`

	// Postgres is optional: without a DSN decisions are not audited.
	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Sessions struct {
		TTL           time.Duration
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"sessions"`
}

// Load reads the YAML file at path. A .env file in the working directory is
// loaded first, and APP_* variables override file values (APP_TELEGRAM_TOKEN
// for telegram.token). The result is not validated.
func Load(path string) (Config, error) {
	var c Config
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.name", "la asociación")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_path", "/telegram/webhook")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("roster.source", SourceSheets)
	v.SetDefault("roster.credentials_file", "")
	v.SetDefault("roster.credentials_json", "")
	v.SetDefault("roster.current.spreadsheet", "")
	v.SetDefault("roster.current.path", "")
	v.SetDefault("roster.previous.spreadsheet", "")
	v.SetDefault("roster.previous.path", "")
	v.SetDefault("roster.header_rows", 1)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("sessions.ttl", 48*time.Hour)
	v.SetDefault("sessions.sweep_interval", 10*time.Minute)
}

// Validate checks everything the bot needs to serve.
func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Telegram.AdminChatID == 0 {
		errs = append(errs, errors.New("telegram.admin_chat_id is required"))
	}
	errs = append(errs, c.rosterErrors()...)
	if c.Sessions.TTL <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}
	if c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("sessions.sweep_interval must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateRoster checks only the roster section, for commands that search
// the roster without running the bot.
func (c Config) ValidateRoster() error {
	return errors.Join(c.rosterErrors()...)
}

func (c Config) rosterErrors() []error {
	var errs []error
	switch c.Roster.Source {
	case SourceSheets, SourceXLSX:
		if !c.Roster.Current.configured(c.Roster.Source) {
			errs = append(errs, fmt.Errorf("roster.current is required for a %s source", c.Roster.Source))
		}
	default:
		errs = append(errs, fmt.Errorf("roster.source must be %q or %q, got %q", SourceSheets, SourceXLSX, c.Roster.Source))
	}
	if _, err := c.Schema(); err != nil {
		errs = append(errs, fmt.Errorf("roster columns: %w", err))
	}
	return errs
}

// Schema returns the default column layout with the configured overrides.
// header_rows is taken as configured; 0 means the sheet has no header.
func (c Config) Schema() (roster.Schema, error) {
	s := roster.DefaultSchema()
	s.HeaderRows = c.Roster.HeaderRows
	for name, col := range c.Roster.Columns {
		f := roster.Field(strings.ToLower(name))
		if !known(f) {
			return s, fmt.Errorf("unknown field %q", name)
		}
		s.Columns[f] = col
	}
	return s, s.Validate()
}

func known(f roster.Field) bool {
	for _, k := range roster.Fields {
		if k == f {
			return true
		}
	}
	return false
}

// WebhookMode reports whether updates arrive over the webhook instead of
// long polling.
func (c Config) WebhookMode() bool {
	return c.Telegram.WebhookURL != ""
}
