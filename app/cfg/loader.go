package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"exchange_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"exchange_password" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"exchange" description:"Database name"`

	// Application configuration
	JournalsDir       string `long:"journals-dir" env:"JOURNALS_DIR" default:"./journals" description:"Directory containing journal configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://press.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for registration processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Repository identity
	RepositoryName string `long:"repository-name" env:"REPOSITORY_NAME" default:"Scholar Exchange" description:"Repository name reported to harvesters"`
	AdminEmail     string `long:"admin-email" env:"ADMIN_EMAIL" default:"admin@localhost" description:"Administrative contact address reported to harvesters"`

	// DOI registration authority
	DOIPrefix    string `long:"doi-prefix" env:"DOI_PREFIX" default:"10.5555" description:"Owning DOI registry prefix"`
	DOIAPIUrl    string `long:"doi-api-url" env:"DOI_API_URL" default:"https://doi.crossref.org/servlet/deposit" description:"Registration authority deposit endpoint"`
	DOIDepositor string `long:"doi-depositor" env:"DOI_DEPOSITOR" description:"Registration authority account name"`
	DOIPassword  string `long:"doi-password" env:"DOI_PASSWORD" description:"Registration authority account password"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Scholar Exchange/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		JournalsDir:       raw.JournalsDir,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		RepositoryName:    raw.RepositoryName,
		AdminEmail:        raw.AdminEmail,
		DOIPrefix:         raw.DOIPrefix,
		DOIAPIUrl:         raw.DOIAPIUrl,
		DOIDepositor:      raw.DOIDepositor,
		DOIPassword:       raw.DOIPassword,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}

// PublicUrl returns the externally reachable base URL, falling back to
// localhost when BASE_URL is not configured.
func (c *Cfg) PublicUrl() string {
	if c.BaseUrl != "" {
		return c.BaseUrl
	}
	return "http://localhost:" + c.Port
}
