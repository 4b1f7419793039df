package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/spf13/viper"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

const envPrefix = "GOALSYNC"

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	File   string `mapstructure:"file"`
}

type WarehouseConfig struct {
	Path      string `mapstructure:"path"`
	Threads   int    `mapstructure:"threads" validate:"gte=0"`
	MaxMemory string `mapstructure:"max_memory"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port" validate:"required"`
	Namespace string `mapstructure:"namespace" validate:"required"`
	TaskQueue string `mapstructure:"task_queue" validate:"required"`
}

type SyncConfig struct {
	MaxRetries       int                  `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelay   time.Duration        `mapstructure:"retry_base_delay" validate:"gt=0"`
	RetryMaxDelay    time.Duration        `mapstructure:"retry_max_delay" validate:"gte=0"`
	DefaultBatchSize int                  `mapstructure:"default_batch_size" validate:"gt=0"`
	Tables           []models.TableConfig `mapstructure:"tables" validate:"dive"`
}

// EnabledTables returns the enabled tables in configured order with batch sizes resolved.
func (c SyncConfig) EnabledTables() []models.TableConfig {
	tables := make([]models.TableConfig, 0, len(c.Tables))
	for _, t := range c.Tables {
		if !t.IsEnabled() {
			continue
		}
		if t.BatchSize <= 0 {
			t.BatchSize = c.DefaultBatchSize
		}
		tables = append(tables, t)
	}
	return tables
}

// AnalyticsConfig names the warehouse fact table and columns metric computations read.
type AnalyticsConfig struct {
	CheckinsTable   string `mapstructure:"checkins_table" validate:"required"`
	UserColumn      string `mapstructure:"user_column" validate:"required"`
	CompletedColumn string `mapstructure:"completed_column" validate:"required"`
	TimestampColumn string `mapstructure:"timestamp_column" validate:"required"`
}

// ScheduleConfig triggers a job either on a fixed interval or on a cron expression.
type ScheduleConfig struct {
	Every  time.Duration `mapstructure:"every" validate:"gte=0"`
	Cron   string        `mapstructure:"cron"`
	Paused bool          `mapstructure:"paused"`
}

type SchedulesConfig struct {
	Sync      ScheduleConfig `mapstructure:"sync"`
	Adherence ScheduleConfig `mapstructure:"adherence"`
	Risk      ScheduleConfig `mapstructure:"risk"`
	Streak    ScheduleConfig `mapstructure:"streak"`
}

type Config struct {
	DatabaseURL string          `mapstructure:"database_url" validate:"required"`
	ServerPort  string          `mapstructure:"server_port"`
	JWTSecret   string          `mapstructure:"jwt_secret" validate:"required"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	Log         LogConfig       `mapstructure:"log"`
	Warehouse   WarehouseConfig `mapstructure:"warehouse"`
	Temporal    TemporalConfig  `mapstructure:"temporal"`
	Sync        SyncConfig      `mapstructure:"sync"`
	Analytics   AnalyticsConfig `mapstructure:"analytics"`
	Schedules   SchedulesConfig `mapstructure:"schedules"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("server_port", "8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("warehouse.path", "warehouse.duckdb")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "GOAL_SYNC")
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.retry_base_delay", 30*time.Second)
	v.SetDefault("sync.retry_max_delay", 15*time.Minute)
	v.SetDefault("sync.default_batch_size", 1000)
	v.SetDefault("analytics.checkins_table", "fact_checkins")
	v.SetDefault("analytics.user_column", "user_id")
	v.SetDefault("analytics.completed_column", "completed")
	v.SetDefault("analytics.timestamp_column", "timestamp")
}

// applyScheduleDefaults fills schedules that set neither every nor cron. Viper defaults would
// merge a default cron into a schedule configured with every.
func (s *SchedulesConfig) applyScheduleDefaults() {
	fill := func(sc *ScheduleConfig, every time.Duration, expr string) {
		if sc.Every == 0 && sc.Cron == "" {
			sc.Every, sc.Cron = every, expr
		}
	}
	fill(&s.Sync, 2*time.Minute, "")
	fill(&s.Adherence, 0, "0 */6 * * *")
	fill(&s.Risk, 0, "0 */4 * * *")
	fill(&s.Streak, 0, "30 */6 * * *")
}

// Load reads configuration from file (or config.yaml in . and ./config when file is empty),
// applies GOALSYNC_* environment overrides and validates the result.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		// Look for config in the current directory and ./config
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.Schedules.applyScheduleDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints, table uniqueness and schedule expressions.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	seen := make(map[string]struct{}, len(c.Sync.Tables))
	for _, t := range c.Sync.Tables {
		if _, dup := seen[t.Source]; dup {
			return errors.Errorf("invalid config: source table %q listed twice", t.Source)
		}
		seen[t.Source] = struct{}{}
	}

	for name, s := range map[string]ScheduleConfig{
		"sync":      c.Schedules.Sync,
		"adherence": c.Schedules.Adherence,
		"risk":      c.Schedules.Risk,
		"streak":    c.Schedules.Streak,
	} {
		if s.Every > 0 && s.Cron != "" {
			return errors.Errorf("invalid config: schedule %s sets both every and cron", name)
		}
		if s.Every == 0 && s.Cron == "" {
			return errors.Errorf("invalid config: schedule %s needs every or cron", name)
		}
		if s.Cron != "" {
			if _, err := cron.ParseStandard(s.Cron); err != nil {
				return errors.Wrapf(err, "invalid config: schedule %s", name)
			}
		}
	}
	return nil
}
