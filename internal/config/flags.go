package config

import (
	"github.com/spf13/pflag"
)

// Flags 命令行参数，只有显式指定的参数覆盖配置文件与环境变量
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath     string
	pccPort        int
	mqttTopic      string
	mqttHost       string
	mqttPort       int
	receiverConfig string
	statusApp      string
	profilesConfig string
	trailThreshold float64
	logLevel       string
}

// BindFlags 在 fs 上注册参数（与 config.yaml 的键同名）
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.ConfigPath, "config", "c", "config.yaml", "path to the YAML config file")
	fs.IntVar(&f.pccPort, "pcc-port", 2137, "HTTP/WebSocket listen port")
	fs.StringVar(&f.mqttTopic, "mqtt-topic", "pcc/in", "MQTT topic to consume")
	fs.StringVar(&f.mqttHost, "mqtt-host", "localhost", "MQTT broker host")
	fs.IntVar(&f.mqttPort, "mqtt-port", 1883, "MQTT broker port")
	fs.StringVar(&f.receiverConfig, "receiver-config", "app_config.json", "display names config")
	fs.StringVar(&f.statusApp, "status-app", "http://localhost:2138/", "status service URL, empty to disable")
	fs.StringVar(&f.profilesConfig, "profiles-config", "profiles-config.json", "profiles config")
	fs.Float64Var(&f.trailThreshold, "trail-threshold", 1.0, "minimum distance in meters between trail points")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level")
	return f
}

// Apply 将显式指定的参数覆盖到 c 并重新校验
func (f *Flags) Apply(c *Config) error {
	var fc fileConfig
	if f.fs.Changed("pcc-port") {
		fc.PccPort = &f.pccPort
	}
	if f.fs.Changed("mqtt-topic") {
		fc.MQTTTopic = &f.mqttTopic
	}
	if f.fs.Changed("mqtt-host") || f.fs.Changed("mqtt-port") {
		fc.MQTTHost = &f.mqttHost
		fc.MQTTPort = &f.mqttPort
	}
	if f.fs.Changed("receiver-config") {
		fc.ReceiverConfig = &f.receiverConfig
	}
	if f.fs.Changed("status-app") {
		fc.StatusApp = &f.statusApp
	}
	if f.fs.Changed("profiles-config") {
		fc.ProfilesConfig = &f.profilesConfig
	}
	if f.fs.Changed("trail-threshold") {
		fc.TrailThreshold = &f.trailThreshold
	}
	if f.fs.Changed("log-level") {
		fc.LogLevel = &f.logLevel
	}
	c.apply(&fc)
	return c.Validate()
}
