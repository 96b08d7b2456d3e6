package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Topic    string
}

// LoadFromEnv 从环境变量加载MQTT配置
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if broker := os.Getenv(prefix + "_BROKER"); broker != "" {
		c.Broker = broker
	}
	if clientID := os.Getenv(prefix + "_CLIENT_ID"); clientID != "" {
		c.ClientID = clientID
	}
	if username := os.Getenv(prefix + "_USERNAME"); username != "" {
		c.Username = username
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if topic := os.Getenv(prefix + "_TOPIC"); topic != "" {
		c.Topic = topic
	}
	if qos := os.Getenv(prefix + "_QOS"); qos != "" {
		if v, err := strconv.Atoi(qos); err == nil && v >= 0 && v <= 2 {
			c.QoS = byte(v)
		}
	}
}

// RedisConfig Redis配置（快照缓存，可选）
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if enabled := os.Getenv(prefix + "_ENABLED"); enabled != "" {
		c.Enabled = enabled == "true"
	}
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		c.DB = parseInt(db, c.DB)
	}
	if keyPrefix := os.Getenv(prefix + "_KEY_PREFIX"); keyPrefix != "" {
		c.KeyPrefix = keyPrefix
	}
	if ttl := os.Getenv(prefix + "_TTL_SECONDS"); ttl != "" {
		c.TTL = time.Duration(parseInt(ttl, int(c.TTL/time.Second))) * time.Second
	}
}

// Config pcc-backend 服务配置
type Config struct {
	HTTP struct {
		Addr string
		// 允许的 WebSocket Origin，为空表示不限制
		AllowedOrigins []string
	}

	MQTT  MQTTConfig
	Redis RedisConfig

	// 外部状态服务
	Status struct {
		URL           string
		PollInterval  time.Duration // 成功后等待时间
		RetryInterval time.Duration // 失败后等待时间（固定，不递增）
		Timeout       time.Duration
	}

	Broadcast struct {
		Interval        time.Duration
		MaxPushFailures int // 连续推送失败次数超过该值后移除会话
		HistoryLimit    int // maps/history 每个 origin 返回的轨迹点数
	}

	Location struct {
		TrailThreshold float64 // 轨迹记录距离阈值（米）
	}

	// 离群值过滤，Tolerance <= 0 表示关闭
	Outlier struct {
		Window       int
		Tolerance    float64
		MinDeviation float64
	}

	ProfilesConfig string
	ReceiverConfig string

	MetricsReportInterval time.Duration

	Log struct {
		Level  string
		Format string
	}
}

// fileConfig 配置文件格式（与旧版 config.yaml 的键保持一致）
type fileConfig struct {
	PccPort             *int     `yaml:"pcc-port"`
	MQTTTopic           *string  `yaml:"mqtt-topic"`
	MQTTHost            *string  `yaml:"mqtt-host"`
	MQTTPort            *int     `yaml:"mqtt-port"`
	ReceiverConfig      *string  `yaml:"receiver-config"`
	StatusApp           *string  `yaml:"status-app"`
	ProfilesConfig      *string  `yaml:"profiles-config"`
	TrailThreshold      *float64 `yaml:"trail-threshold"`
	BroadcastIntervalMS *int     `yaml:"broadcast-interval-ms"`
	AllowedOrigins      []string `yaml:"allowed-origins"`
	RedisAddr           *string  `yaml:"redis-addr"`
	RedisEnabled        *bool    `yaml:"redis-enabled"`
	OutlierWindow       *int     `yaml:"outlier-window"`
	OutlierTolerance    *float64 `yaml:"outlier-tolerance"`
	OutlierMinDeviation *float64 `yaml:"outlier-min-deviation"`
	LogLevel            *string  `yaml:"log-level"`
	LogFormat           *string  `yaml:"log-format"`
}

// Load 加载配置：默认值 -> 配置文件（可选）-> 环境变量
// 配置文件不存在时忽略，格式错误时返回错误
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.HTTP.Addr = ":2137"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "pcc-backend"
	cfg.MQTT.Topic = "pcc/in"
	cfg.MQTT.QoS = 0

	cfg.Redis.Enabled = false
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.KeyPrefix = "pcc"
	cfg.Redis.TTL = 30 * time.Second

	cfg.Status.URL = "http://localhost:2138/"
	cfg.Status.PollInterval = 200 * time.Millisecond
	cfg.Status.RetryInterval = 5 * time.Second
	cfg.Status.Timeout = 5 * time.Second

	cfg.Broadcast.Interval = 500 * time.Millisecond
	cfg.Broadcast.MaxPushFailures = 3
	cfg.Broadcast.HistoryLimit = 200

	cfg.Location.TrailThreshold = 1.0

	cfg.Outlier.Window = 21
	cfg.Outlier.Tolerance = 0
	cfg.Outlier.MinDeviation = 0

	cfg.ProfilesConfig = "profiles-config.json"
	cfg.ReceiverConfig = "app_config.json"

	cfg.MetricsReportInterval = 60 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.apply(&fc)
	return nil
}

// apply 覆盖非空的字段
func (c *Config) apply(fc *fileConfig) {
	if fc.PccPort != nil {
		c.HTTP.Addr = fmt.Sprintf(":%d", *fc.PccPort)
	}
	if fc.MQTTTopic != nil {
		c.MQTT.Topic = *fc.MQTTTopic
	}
	if fc.MQTTHost != nil || fc.MQTTPort != nil {
		host, port := "localhost", 1883
		if fc.MQTTHost != nil {
			host = *fc.MQTTHost
		}
		if fc.MQTTPort != nil {
			port = *fc.MQTTPort
		}
		c.MQTT.Broker = BrokerURL(host, port)
	}
	if fc.ReceiverConfig != nil {
		c.ReceiverConfig = *fc.ReceiverConfig
	}
	if fc.StatusApp != nil {
		c.Status.URL = *fc.StatusApp
	}
	if fc.ProfilesConfig != nil {
		c.ProfilesConfig = *fc.ProfilesConfig
	}
	if fc.TrailThreshold != nil {
		c.Location.TrailThreshold = *fc.TrailThreshold
	}
	if fc.BroadcastIntervalMS != nil {
		c.Broadcast.Interval = time.Duration(*fc.BroadcastIntervalMS) * time.Millisecond
	}
	if len(fc.AllowedOrigins) > 0 {
		c.HTTP.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.RedisAddr != nil {
		c.Redis.Addr = *fc.RedisAddr
	}
	if fc.RedisEnabled != nil {
		c.Redis.Enabled = *fc.RedisEnabled
	}
	if fc.OutlierWindow != nil {
		c.Outlier.Window = *fc.OutlierWindow
	}
	if fc.OutlierTolerance != nil {
		c.Outlier.Tolerance = *fc.OutlierTolerance
	}
	if fc.OutlierMinDeviation != nil {
		c.Outlier.MinDeviation = *fc.OutlierMinDeviation
	}
	if fc.LogLevel != nil {
		c.Log.Level = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		c.Log.Format = *fc.LogFormat
	}
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	if origins := getEnv("HTTP_ALLOWED_ORIGINS", ""); origins != "" {
		c.HTTP.AllowedOrigins = splitList(origins)
	}

	c.MQTT.LoadFromEnv("MQTT")
	c.Redis.LoadFromEnv("REDIS")

	c.Status.URL = getEnv("STATUS_APP_URL", c.Status.URL)
	c.ProfilesConfig = getEnv("PROFILES_CONFIG", c.ProfilesConfig)
	c.ReceiverConfig = getEnv("RECEIVER_CONFIG", c.ReceiverConfig)

	if v := getEnv("TRAIL_THRESHOLD_M", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Location.TrailThreshold = f
		}
	}
	if v := getEnv("BROADCAST_INTERVAL_MS", ""); v != "" {
		c.Broadcast.Interval = time.Duration(parseInt(v, int(c.Broadcast.Interval/time.Millisecond))) * time.Millisecond
	}
	if v := getEnv("BROADCAST_MAX_PUSH_FAILURES", ""); v != "" {
		c.Broadcast.MaxPushFailures = parseInt(v, c.Broadcast.MaxPushFailures)
	}
	if v := getEnv("OUTLIER_TOLERANCE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Outlier.Tolerance = f
		}
	}
	if v := getEnv("OUTLIER_WINDOW", ""); v != "" {
		c.Outlier.Window = parseInt(v, c.Outlier.Window)
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt topic must not be empty")
	}
	if c.Broadcast.Interval <= 0 {
		return fmt.Errorf("broadcast interval must be positive, got %s", c.Broadcast.Interval)
	}
	if c.Location.TrailThreshold < 0 {
		return fmt.Errorf("trail threshold must not be negative, got %f", c.Location.TrailThreshold)
	}
	return nil
}

// String 启动日志用的配置摘要
func (c *Config) String() string {
	return fmt.Sprintf("Hosting PCC on %s, receiving mqtt traffic from %s on topic %s, display names from %s, profiles from %s, status app %s",
		c.HTTP.Addr, c.MQTT.Broker, c.MQTT.Topic, c.ReceiverConfig, c.ProfilesConfig, c.Status.URL)
}

// BrokerURL 由主机和端口构造 MQTT Broker 地址
func BrokerURL(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
