package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SimConfig is the sim.yaml document.
type SimConfig struct {
	Version int `yaml:"version"`
	Room    struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"room"`
	Network struct {
		UIPort          int    `yaml:"ui_port"`
		MQTTURL         string `yaml:"mqtt_url"`
		MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`
	} `yaml:"network"`
	Procedure string `yaml:"procedure"`
	Gating    struct {
		ToleranceM      *float64  `yaml:"tolerance_m"`
		ErgonomicOffset []float64 `yaml:"ergonomic_offset"`
	} `yaml:"gating"`
	Timing struct {
		MediaDelay      time.Duration `yaml:"media_delay"`
		FeedbackDismiss time.Duration `yaml:"feedback_dismiss"`
		TickInterval    time.Duration `yaml:"tick_interval"`
	} `yaml:"timing"`
	Controllers struct {
		HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	} `yaml:"controllers"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Default is used when no sim.yaml exists. Environment overrides still apply.
func Default() *SimConfig {
	cfg := &SimConfig{Version: 1}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *SimConfig) applyDefaults() {
	if c.Room.ID == "" {
		c.Room.ID = "foley-sim"
	}
	if c.Network.UIPort == 0 {
		c.Network.UIPort = 8080
	}
	if c.Network.MQTTURL == "" {
		c.Network.MQTTURL = "tcp://localhost:1883"
	}
	if c.Network.MQTTTopicPrefix == "" {
		c.Network.MQTTTopicPrefix = "sim"
	}
	if c.Timing.MediaDelay == 0 {
		c.Timing.MediaDelay = 4 * time.Second
	}
	if c.Timing.FeedbackDismiss == 0 {
		c.Timing.FeedbackDismiss = 3 * time.Second
	}
	if c.Timing.TickInterval == 0 {
		c.Timing.TickInterval = 50 * time.Millisecond
	}
	if c.Controllers.HeartbeatTimeout == 0 {
		c.Controllers.HeartbeatTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// UIPort returns the configured UI port.
func (c *SimConfig) UIPort() int {
	return c.Network.UIPort
}

// CueTopic is where cue commands for the headset are published.
func (c *SimConfig) CueTopic() string {
	return c.Network.MQTTTopicPrefix + "/headset/cues"
}

// LoadSimConfig reads sim.yaml and fills defaults. Environment overrides
// (SIM_LOG_LEVEL, MQTT_URL) win over the file.
func LoadSimConfig(path string) (*SimConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg SimConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sim.yaml: %w", err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported sim.yaml version: %d", cfg.Version)
	}
	if n := len(cfg.Gating.ErgonomicOffset); n != 0 && n != 3 {
		return nil, fmt.Errorf("gating.ergonomic_offset: want 3 values, got %d", n)
	}
	if cfg.Gating.ToleranceM != nil && *cfg.Gating.ToleranceM < 0 {
		return nil, fmt.Errorf("gating.tolerance_m must not be negative")
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *SimConfig) applyEnv() {
	if v := os.Getenv("SIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MQTT_URL"); v != "" {
		c.Network.MQTTURL = v
	}
}
