package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Log       LogConfig       `mapstructure:"log"`
	ReportDir string          `mapstructure:"report_dir"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"` // debug, release
	APIToken string `mapstructure:"api_token"`
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
}

type RabbitMQConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	VHost       string `mapstructure:"vhost"`
	ScanQueue   string `mapstructure:"scan_queue"`
	ResultQueue string `mapstructure:"result_queue"`
}

// EngineConfig 检测引擎配置
type EngineConfig struct {
	DetectorTimeout  int    `mapstructure:"detector_timeout"`  // seconds - 单检测器超时
	CommandTimeout   int    `mapstructure:"command_timeout"`   // seconds - 诊断命令超时
	FDCheckEnable    bool   `mapstructure:"fd_check_enable"`   // 文件描述符参考检查
	ProcRoot         string `mapstructure:"proc_root"`         // proc 挂载点，默认 /proc
	ScheduleInterval int    `mapstructure:"schedule_interval"` // seconds - 周期扫描间隔，0 关闭
	ScheduleProfile  string `mapstructure:"schedule_profile"`  // full / quick
}

// GuardConfig 防篡改门禁配置
type GuardConfig struct {
	ProcessName  string   `mapstructure:"process_name"`
	ModulePrefix string   `mapstructure:"module_prefix"`
	PathPrefixes []string `mapstructure:"path_prefixes"`
}

// IntegrityConfig 安装包完整性检测配置
type IntegrityConfig struct {
	PackageName       string   `mapstructure:"package_name"`
	ExpectedSignature string   `mapstructure:"expected_signature"`
	EnforceSignature  bool     `mapstructure:"enforce_signature"`
	AllowedInstallers []string `mapstructure:"allowed_installers"`
}

// WatcherConfig 特征文件监视配置
type WatcherConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Paths           []string `mapstructure:"paths"`
	DebounceSeconds int      `mapstructure:"debounce_seconds"`
}

// NotifyConfig 异常结果外推配置
type NotifyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Timeout    int    `mapstructure:"timeout"` // seconds
	MaxRetries int    `mapstructure:"max_retries"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"` // Worker 数量
	QueueSize   int `mapstructure:"queue_size"`  // 任务队列大小
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// 环境变量覆盖（支持嵌套配置）
	viper.AutomaticEnv()

	// 绑定环境变量到嵌套配置路径
	// RabbitMQ
	viper.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	viper.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	viper.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	viper.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	viper.BindEnv("database.host", "MYSQL_HOST")
	viper.BindEnv("database.port", "MYSQL_PORT")
	viper.BindEnv("database.user", "MYSQL_USER")
	viper.BindEnv("database.password", "MYSQL_PASS")
	viper.BindEnv("database.db_name", "MYSQL_DB")

	// Server
	viper.BindEnv("server.api_token", "GUARD_API_TOKEN")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults 填充缺省配置
func applyDefaults(cfg *Config) {
	if cfg.Engine.DetectorTimeout <= 0 {
		cfg.Engine.DetectorTimeout = 10
	}
	if cfg.Engine.CommandTimeout <= 0 {
		cfg.Engine.CommandTimeout = 5
	}
	if cfg.Engine.ScheduleProfile == "" {
		cfg.Engine.ScheduleProfile = "quick"
	}
	if cfg.RabbitMQ.ScanQueue == "" {
		cfg.RabbitMQ.ScanQueue = "scan_requests"
	}
	if cfg.RabbitMQ.ResultQueue == "" {
		cfg.RabbitMQ.ResultQueue = "scan_results"
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 2
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = 16
	}
	if cfg.Watcher.DebounceSeconds <= 0 {
		cfg.Watcher.DebounceSeconds = 3
	}
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = 10
	}
	if cfg.Notify.MaxRetries <= 0 {
		cfg.Notify.MaxRetries = 3
	}
}
