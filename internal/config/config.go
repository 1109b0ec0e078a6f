// Package config loads the service configuration from an optional YAML
// file and TANK_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/quentinrf/tank-monitor/internal/adapters/sqlsource"
	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/engine"
)

// EnvPrefix prefixes every environment override, e.g. TANK_SOURCE_DSN
const EnvPrefix = "TANK"

// Source drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
	DriverMock   = "mock"
	DriverMemory = "memory"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Source   SourceConfig   `mapstructure:"source"`
	Tank     TankConfig     `mapstructure:"tank"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Store    StoreConfig    `mapstructure:"store"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Live     LiveConfig     `mapstructure:"live"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"` // empty disables gRPC
	TLSCert         string        `mapstructure:"tls_cert"`
	TLSKey          string        `mapstructure:"tls_key"`
	TLSCA           string        `mapstructure:"tls_ca"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SourceConfig struct {
	Driver      string        `mapstructure:"driver"` // "mysql" | "sqlite3" | "mock" | "memory"
	DSN         string        `mapstructure:"dsn"`
	Table       string        `mapstructure:"table"`
	LevelColumn string        `mapstructure:"level_column"`
	TimeColumn  string        `mapstructure:"time_column"`
	Window      time.Duration `mapstructure:"window"`
	Timezone    string        `mapstructure:"timezone"`
}

// TankConfig holds the geometry and calibration constants
type TankConfig struct {
	Site                  string  `mapstructure:"site"`
	LevelMax              float64 `mapstructure:"level_max"`
	RatedCapacity         float64 `mapstructure:"rated_capacity"`
	Radius                float64 `mapstructure:"radius"`
	BaseArea              float64 `mapstructure:"base_area"`
	ReferenceUnitCapacity float64 `mapstructure:"reference_unit_capacity"`
}

type EngineConfig struct {
	Strategy             string        `mapstructure:"strategy"`
	VolumeModel          string        `mapstructure:"volume_model"`
	DayStartHour         int           `mapstructure:"day_start_hour"`
	DayEndHour           int           `mapstructure:"day_end_hour"`
	IntervalScope        string        `mapstructure:"interval_scope"`
	MonthToDate          bool          `mapstructure:"month_to_date"`
	DropThreshold        float64       `mapstructure:"drop_threshold"`
	TrendWindow          int           `mapstructure:"trend_window"`
	AlertMinVolume       float64       `mapstructure:"alert_min_volume"`
	WindowOperatingHours float64       `mapstructure:"window_operating_hours"`
	WindowTolerance      time.Duration `mapstructure:"window_tolerance"`
}

type StoreConfig struct {
	SeriesPath string `mapstructure:"series_path"`
	ReportPath string `mapstructure:"report_path"`
	StagingDir string `mapstructure:"staging_dir"`
	S3Bucket   string `mapstructure:"s3_bucket"` // empty disables the S3 mirror
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
}

type PublishConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	RepoPath    string `mapstructure:"repo_path"`
	Remote      string `mapstructure:"remote"`
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
	Username    string `mapstructure:"username"`
	Token       string `mapstructure:"token"`
}

type LiveConfig struct {
	Event        string   `mapstructure:"event"`
	Websocket    bool     `mapstructure:"websocket"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"` // empty disables the Kafka sink
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	MQTTBroker   string   `mapstructure:"mqtt_broker"` // empty disables the MQTT sink
	MQTTTopic    string   `mapstructure:"mqtt_topic"`
	MQTTClientID string   `mapstructure:"mqtt_client_id"`
}

type ScheduleConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" | "json"
}

func setDefaults(v *viper.Viper) {
	d := engine.DefaultConfig()

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.tls_ca", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("source.driver", DriverMock)
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.table", "datos.tanque_alcaldes")
	v.SetDefault("source.level_column", "Nivel_1")
	v.SetDefault("source.time_column", "t_stamp")
	v.SetDefault("source.window", 30*24*time.Hour)
	v.SetDefault("source.timezone", "Local")

	v.SetDefault("tank.site", d.Site)
	v.SetDefault("tank.level_max", d.LevelMax)
	v.SetDefault("tank.rated_capacity", d.RatedCapacity)
	v.SetDefault("tank.radius", d.Radius)
	v.SetDefault("tank.base_area", d.BaseArea)
	v.SetDefault("tank.reference_unit_capacity", d.ReferenceUnitCapacity)

	v.SetDefault("engine.strategy", string(d.Strategy))
	v.SetDefault("engine.volume_model", d.VolumeModel)
	v.SetDefault("engine.day_start_hour", d.DayStartHour)
	v.SetDefault("engine.day_end_hour", d.DayEndHour)
	v.SetDefault("engine.interval_scope", d.IntervalScope)
	v.SetDefault("engine.month_to_date", d.MonthToDate)
	v.SetDefault("engine.drop_threshold", d.DropThreshold)
	v.SetDefault("engine.trend_window", d.TrendWindow)
	v.SetDefault("engine.alert_min_volume", d.AlertMinVolume)
	v.SetDefault("engine.window_operating_hours", d.WindowOperatingHours)
	v.SetDefault("engine.window_tolerance", d.WindowTolerance)

	v.SetDefault("store.series_path", "data/tanque_alcaldes_historial_30dias.csv")
	v.SetDefault("store.report_path", "data/reporte_tanque_alcaldes.json")
	v.SetDefault("store.staging_dir", "")
	v.SetDefault("store.s3_bucket", "")
	v.SetDefault("store.s3_prefix", "")
	v.SetDefault("store.s3_region", "us-east-1")

	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.repo_path", "")
	v.SetDefault("publish.remote", "origin")
	v.SetDefault("publish.author_name", "tank-monitor")
	v.SetDefault("publish.author_email", "tank-monitor@localhost")
	v.SetDefault("publish.username", "")
	v.SetDefault("publish.token", "")

	v.SetDefault("live.event", "update_data")
	v.SetDefault("live.websocket", true)
	v.SetDefault("live.kafka_brokers", []string{})
	v.SetDefault("live.kafka_topic", "tank.live")
	v.SetDefault("live.mqtt_broker", "")
	v.SetDefault("live.mqtt_topic", "tank/live")
	v.SetDefault("live.mqtt_client_id", "tank-monitor")

	v.SetDefault("schedule.interval", 30*time.Minute)
	v.SetDefault("schedule.run_on_start", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads defaults, then the file at path (if any), then the environment
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves source.timezone
func (c Config) Location() (*time.Location, error) {
	if c.Source.Timezone == "" || c.Source.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Source.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidConfig, c.Source.Timezone)
	}
	return loc, nil
}

// EngineConfig assembles the metrics engine configuration
func (c Config) EngineConfig() (engine.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Strategy:              domain.Strategy(c.Engine.Strategy),
		VolumeModel:           c.Engine.VolumeModel,
		Site:                  c.Tank.Site,
		LevelMax:              c.Tank.LevelMax,
		RatedCapacity:         c.Tank.RatedCapacity,
		Radius:                c.Tank.Radius,
		BaseArea:              c.Tank.BaseArea,
		ReferenceUnitCapacity: c.Tank.ReferenceUnitCapacity,
		DayStartHour:          c.Engine.DayStartHour,
		DayEndHour:            c.Engine.DayEndHour,
		IntervalScope:         c.Engine.IntervalScope,
		MonthToDate:           c.Engine.MonthToDate,
		DropThreshold:         c.Engine.DropThreshold,
		TrendWindow:           c.Engine.TrendWindow,
		AlertMinVolume:        c.Engine.AlertMinVolume,
		WindowOperatingHours:  c.Engine.WindowOperatingHours,
		WindowTolerance:       c.Engine.WindowTolerance,
		Location:              loc,
	}, nil
}

// Validate rejects inconsistent values
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidConfig}, args...)...)
	}

	switch c.Source.Driver {
	case DriverMySQL, DriverSQLite:
		if c.Source.DSN == "" {
			return invalid("source.dsn is required for driver %s", c.Source.Driver)
		}
		for _, name := range []string{c.Source.Table, c.Source.LevelColumn, c.Source.TimeColumn} {
			if !sqlsource.ValidIdentifier(name) {
				return invalid("invalid SQL identifier %q", name)
			}
		}
	case DriverMock, DriverMemory:
	default:
		return invalid("unknown source driver %q", c.Source.Driver)
	}
	if c.Source.Window <= 0 {
		return invalid("source.window must be positive")
	}

	if c.Schedule.Interval < time.Second || c.Schedule.Interval > 24*time.Hour {
		return invalid("schedule.interval must be between 1s and 24h, got %s", c.Schedule.Interval)
	}

	ec, err := c.EngineConfig()
	if err != nil {
		return err
	}
	if err := ec.Validate(); err != nil {
		return err
	}

	if c.Store.SeriesPath == "" || c.Store.ReportPath == "" {
		return invalid("store.series_path and store.report_path are required")
	}
	if c.Publish.Enabled {
		if c.Publish.RepoPath == "" {
			return invalid("publish.repo_path is required when publishing is enabled")
		}
		// the publisher commits what the store returns: the staging copies
		// when a staging dir is set, the snapshot files otherwise
		published := []string{c.Store.SeriesPath, c.Store.ReportPath}
		if c.Store.StagingDir != "" {
			published = []string{filepath.Join(c.Store.StagingDir, filepath.Base(c.Store.SeriesPath))}
		}
		for _, path := range published {
			if !insideDir(c.Publish.RepoPath, path) {
				return invalid("%s is outside publish.repo_path %s, set store.staging_dir inside the repository", path, c.Publish.RepoPath)
			}
		}
	}
	if c.Live.Event == "" {
		return invalid("live.event must not be empty")
	}
	if len(c.Live.KafkaBrokers) > 0 && c.Live.KafkaTopic == "" {
		return invalid("live.kafka_topic is required with kafka brokers")
	}
	if c.Live.MQTTBroker != "" && c.Live.MQTTTopic == "" {
		return invalid("live.mqtt_topic is required with an mqtt broker")
	}

	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return invalid("server.tls_cert and server.tls_key must be set together")
	}
	if c.Server.TLSCA != "" && c.Server.TLSCert == "" {
		return invalid("server.tls_ca requires server.tls_cert")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return invalid("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}
	return nil
}

// insideDir reports whether path lies below dir
func insideDir(dir, path string) bool {
	root, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
