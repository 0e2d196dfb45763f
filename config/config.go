// Package config loads process configuration from config.yml and the
// environment. Environment variables win over the file; command-line flags
// (cmd/server) win over both.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/gotify/configor"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warp/staffops/generic"
)

type Configuration struct {
	Server struct {
		ListenAddr string `default:"" env:"SERVER_HOST"`
		Port       int    `default:"8080" env:"SERVER_PORT"`
	}
	Database struct {
		Path string `default:"staffops.db" env:"DB_PATH"`
	}
	Log struct {
		Level  string `default:"info" env:"LOG_LEVEL"`
		Format string `default:"text" env:"LOG_FORMAT"` // text or json
	}
	Scheduler struct {
		Enabled          *bool  `default:"true" env:"SCHEDULER_ENABLED"`
		RunAt            string `default:"09:00" env:"SCHEDULER_RUN_AT"`
		Timezone         string `default:"Local" env:"SCHEDULER_TIMEZONE"`
		GraceDays        *int   `default:"5" env:"SCHEDULER_GRACE_DAYS"`
		RefreshForecasts *bool  `default:"true" env:"SCHEDULER_REFRESH_FORECASTS"`
	}
	Lift struct {
		MinExcuseLength  int `default:"5" env:"LIFT_MIN_EXCUSE_LENGTH"`
		MaxDeductionDays int `default:"30" env:"LIFT_MAX_DEDUCTION_DAYS"`
	}
	Notify struct {
		Recipients string `default:"" env:"NOTIFY_RECIPIENTS"` // comma separated
		Email      *bool  `default:"false" env:"NOTIFY_EMAIL"`
	}
	Smtp struct {
		User       string `default:"" env:"SMTP_USER"`
		Password   string `default:"" env:"SMTP_PASSWORD"`
		Host       string `default:"" env:"SMTP_HOST"`
		Port       string `default:"" env:"SMTP_PORT"`
		From       string `default:"" env:"SMTP_FROM"`
		TLSEnabled *bool  `default:"true" env:"SMTP_TLS_ENABLED"`
	}
	Policies struct {
		File string `default:"" env:"POLICY_FILE"`
	}
}

// DefaultFiles is where Load looks when no file is given. Missing files
// are skipped.
func DefaultFiles() []string {
	return []string{"config.yml"}
}

// Load reads files (or DefaultFiles) plus the environment, then validates.
func Load(files ...string) (*Configuration, error) {
	if len(files) == 0 {
		files = DefaultFiles()
	}
	conf := new(Configuration)
	if err := configor.New(&configor.Config{}).Load(conf, files...); err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate rejects values the process cannot run with.
func (c *Configuration) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return generic.Invalid("server.port", "must be 1-65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return generic.Invalid("database.path", "required")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return generic.Invalid("log.level", "%v", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return generic.Invalid("log.format", "must be text or json, got %q", c.Log.Format)
	}
	if _, _, err := c.RunAt(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.GraceDays() < 0 {
		return generic.Invalid("scheduler.gracedays", "must be >= 0, got %d", c.GraceDays())
	}
	if c.Lift.MinExcuseLength <= 0 {
		return generic.Invalid("lift.minexcuselength", "must be > 0, got %d", c.Lift.MinExcuseLength)
	}
	if c.Lift.MaxDeductionDays <= 0 {
		return generic.Invalid("lift.maxdeductiondays", "must be > 0, got %d", c.Lift.MaxDeductionDays)
	}
	if c.EmailEnabled() && (c.Smtp.Host == "" || c.Smtp.Port == "") {
		return generic.Invalid("smtp", "host and port are required when email notifications are enabled")
	}
	return nil
}

// RunAt parses Scheduler.RunAt ("HH:MM").
func (c *Configuration) RunAt() (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(c.Scheduler.RunAt), ":")
	if len(parts) != 2 {
		return 0, 0, generic.Invalid("scheduler.runat", "want HH:MM, got %q", c.Scheduler.RunAt)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, generic.Invalid("scheduler.runat", "bad hour in %q", c.Scheduler.RunAt)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, generic.Invalid("scheduler.runat", "bad minute in %q", c.Scheduler.RunAt)
	}
	return hour, minute, nil
}

// Location resolves Scheduler.Timezone. "Local" and "" mean the process zone.
func (c *Configuration) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, generic.Invalid("scheduler.timezone", "%v", err)
	}
	return loc, nil
}

func (c *Configuration) SchedulerEnabled() bool { return boolOr(c.Scheduler.Enabled, true) }
func (c *Configuration) RefreshForecasts() bool { return boolOr(c.Scheduler.RefreshForecasts, true) }
func (c *Configuration) EmailEnabled() bool { return boolOr(c.Notify.Email, false) }
func (c *Configuration) SmtpTLS() bool { return boolOr(c.Smtp.TLSEnabled, true) }

// GraceDays is the grace before an overdue leave is penalized.
func (c *Configuration) GraceDays() int {
	if c.Scheduler.GraceDays == nil {
		return 5
	}
	return *c.Scheduler.GraceDays
}

// Recipients splits Notify.Recipients.
func (c *Configuration) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.Notify.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// ConfigureLogger applies Log.Level and Log.Format to the standard logger.
func (c *Configuration) ConfigureLogger() {
	if level, err := log.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if strings.EqualFold(c.Log.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
