package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the daemon's full configuration, loaded with priority
// default -> file(s) -> environment -> CLI flags (each layer
// overriding the previous).
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Launcher  LauncherConfig  `toml:"launcher"`
	Logging   LoggingConfig   `toml:"logging"`
	WebSocket WebSocketConfig `toml:"websocket"`
	NodeName  string          `toml:"node_name"`
	Debug     bool            `toml:"debug"`
}

// ServerConfig governs the status-view HTTP listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig locates the embedded durable store directories.
type StorageConfig struct {
	DBsDir         string `toml:"dbs_dir"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// LauncherConfig carries the launcher/scheduling subsystem's tunables,
// spec §6's configuration keys.
type LauncherConfig struct {
	MaxProc        int    `toml:"max_proc"`
	MaxProcPerCPU  int    `toml:"max_proc_per_cpu"`
	FinishedToKeep int    `toml:"finished_to_keep"`
	Runner         string `toml:"runner"`
	LogsDir        string `toml:"logs_dir"`
	ItemsDir       string `toml:"items_dir"`
	SettingsModule string `toml:"settings_module"`
	ReconcileCron  string `toml:"reconcile_cron"`
	ProjectsFile   string `toml:"projects_file"`
}

// LoggingConfig mirrors the shape arbor's writers expect.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// WebSocketConfig throttles the live status push.
type WebSocketConfig struct {
	Enabled           bool    `toml:"enabled"`
	ThrottleEventsSec float64 `toml:"throttle_events_per_sec"`
}

// NewDefaultConfig returns the configuration a fresh install starts
// from before any file, environment or flag layer is applied.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 6800,
		},
		Storage: StorageConfig{
			DBsDir:         "./dbs",
			ResetOnStartup: false,
		},
		Launcher: LauncherConfig{
			MaxProc:        0, // 0 = derive from cpu_count * max_proc_per_cpu
			MaxProcPerCPU:  4,
			FinishedToKeep: 100,
			Runner:         "crawlrunner",
			LogsDir:        "./logs/jobs",
			ItemsDir:       "./items",
			ReconcileCron:  "*/5 * * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"console"},
			TimeFormat: "15:04:05.000",
		},
		WebSocket: WebSocketConfig{
			Enabled:           true,
			ThrottleEventsSec: 10,
		},
		NodeName: hostnameOrDefault(),
		Debug:    false,
	}
}

// LoadFromFiles loads configuration starting from defaults and merging
// each TOML file in order — later files override earlier ones — then
// applies environment variable overrides. Empty paths are skipped; a
// path that cannot be read is an error.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies CRAWLERD_* environment variables, which
// take priority over every config file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CRAWLERD_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("CRAWLERD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("CRAWLERD_DBS_DIR"); v != "" {
		config.Storage.DBsDir = v
	}
	if v := os.Getenv("CRAWLERD_MAX_PROC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Launcher.MaxProc = n
		}
	}
	if v := os.Getenv("CRAWLERD_MAX_PROC_PER_CPU"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Launcher.MaxProcPerCPU = n
		}
	}
	if v := os.Getenv("CRAWLERD_FINISHED_TO_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Launcher.FinishedToKeep = n
		}
	}
	if v := os.Getenv("CRAWLERD_RUNNER"); v != "" {
		config.Launcher.Runner = v
	}
	if v := os.Getenv("CRAWLERD_LOGS_DIR"); v != "" {
		config.Launcher.LogsDir = v
	}
	if v := os.Getenv("CRAWLERD_ITEMS_DIR"); v != "" {
		config.Launcher.ItemsDir = v
	}
	if v := os.Getenv("CRAWLERD_NODE_NAME"); v != "" {
		config.NodeName = v
	}
	if v := os.Getenv("CRAWLERD_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("CRAWLERD_DEBUG"); v != "" {
		config.Debug = strings.EqualFold(v, "true") || v == "1"
	}
}

// ApplyFlagOverrides applies command-line flag values, the highest
// priority layer.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}
