package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/PJI-Apps/Intake-Reports/internal/store"
)

// AppConfig 应用配置
type AppConfig struct {
	Server ServerConfig `toml:"server"`
	Data   DataConfig   `toml:"data"`
	Store  StoreConfig  `toml:"store"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int      `toml:"port"`
	DevMode     bool     `toml:"dev_mode"`
	CORSOrigins []string `toml:"cors_origins"`
	SessionIdle Duration `toml:"session_idle"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir"`
	DBFile  string `toml:"db_file"`
}

// StoreConfig 快照存储的重试与缓存
type StoreConfig struct {
	ResolveDelays []Duration `toml:"resolve_delays"`
	ReadDelays    []Duration `toml:"read_delays"`
	WriteDelays   []Duration `toml:"write_delays"`
	CacheTTL      Duration   `toml:"cache_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration 以 "600ms" 形式书写的时长
type Duration struct {
	time.Duration
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// MarshalText 实现 encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	FileFound     bool
	PortSpecified bool
	EnvOverrides  []string
}

func durations(ds ...time.Duration) []Duration {
	out := make([]Duration, len(ds))
	for i, d := range ds {
		out[i] = Duration{d}
	}
	return out
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:        20261,
			CORSOrigins: []string{"*"},
			SessionIdle: Duration{12 * time.Hour},
		},
		Data: DataConfig{
			DataDir: "data",
			DBFile:  "intake.db",
		},
		Store: StoreConfig{
			ResolveDelays: durations(0, 600*time.Millisecond, 1200*time.Millisecond),
			ReadDelays:    durations(0, time.Second, 2*time.Second),
			WriteDelays:   durations(0, time.Second, 2*time.Second),
			CacheTTL:      Duration{300 * time.Second},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultPath 可执行文件同目录下的 config.toml
func DefaultPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, "config.toml")
}

// LoadConfigWithInfo 从可执行文件同目录的 config.toml 加载配置
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	return LoadFile(DefaultPath())
}

// LoadFile 从指定路径加载配置；文件不存在时使用默认配置。
// 随后加载工作目录下的 .env 并应用 INTAKE_* 环境变量覆盖
func LoadFile(path string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{Path: path}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.FileFound = true
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, info, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, info, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// .env 可选
	_ = godotenv.Load(".env")

	overrides, err := applyEnv(cfg)
	if err != nil {
		return nil, info, err
	}
	info.EnvOverrides = overrides
	return cfg, info, nil
}

// LoadConfig 从 config.toml 加载配置
func LoadConfig() (*AppConfig, error) {
	cfg, _, err := LoadConfigWithInfo()
	return cfg, err
}

func applyEnv(cfg *AppConfig) ([]string, error) {
	var applied []string
	if v := os.Getenv("INTAKE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid INTAKE_PORT %q", v)
		}
		cfg.Server.Port = port
		applied = append(applied, "INTAKE_PORT")
	}
	if v := os.Getenv("INTAKE_DATA_DIR"); v != "" {
		cfg.Data.DataDir = v
		applied = append(applied, "INTAKE_DATA_DIR")
	}
	if v := os.Getenv("INTAKE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
		applied = append(applied, "INTAKE_LOG_LEVEL")
	}
	if v := os.Getenv("INTAKE_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
		applied = append(applied, "INTAKE_CORS_ORIGINS")
	}
	if v := os.Getenv("INTAKE_CACHE_TTL"); v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid INTAKE_CACHE_TTL: %w", err)
		}
		cfg.Store.CacheTTL = d
		applied = append(applied, "INTAKE_CACHE_TTL")
	}
	return applied, nil
}

// SaveConfig 保存配置到 path
func SaveConfig(cfg *AppConfig, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolveDataDir 数据目录的绝对路径；相对路径以可执行文件目录为基准
func ResolveDataDir(cfg *AppConfig) string {
	if filepath.IsAbs(cfg.Data.DataDir) {
		return cfg.Data.DataDir
	}
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, cfg.Data.DataDir)
}

// EnsureDataDir 确保数据目录及子目录存在
func EnsureDataDir(cfg *AppConfig) (string, error) {
	dataDir := ResolveDataDir(cfg)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}

	subdirs := []string{"uploads", "exports", "backups"}
	for _, subdir := range subdirs {
		path := filepath.Join(dataDir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", err
		}
	}

	return dataDir, nil
}

// GetDataPath 获取数据文件路径
func GetDataPath(cfg *AppConfig, subdir, filename string) string {
	return filepath.Join(ResolveDataDir(cfg), subdir, filename)
}

// DBPath SQLite 文件路径
func DBPath(cfg *AppConfig) string {
	return filepath.Join(ResolveDataDir(cfg), cfg.Data.DBFile)
}

func unwrap(ds []Duration) []time.Duration {
	if len(ds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d.Duration
	}
	return out
}

// StoreOptions 转换为适配器参数
func (c StoreConfig) StoreOptions() store.Options {
	return store.Options{
		ResolveDelays: unwrap(c.ResolveDelays),
		ReadDelays:    unwrap(c.ReadDelays),
		WriteDelays:   unwrap(c.WriteDelays),
		CacheTTL:      c.CacheTTL.Duration,
	}
}
