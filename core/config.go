package core

import (
	"fmt"
	"strings"
	"time"
)

type SweepConfig struct {
	Interval     time.Duration `koanf:"interval" mapstructure:"interval"`
	InitialDelay time.Duration `koanf:"initial_delay" mapstructure:"initial_delay"`
}

// Config is read once at startup; the engine treats it as immutable for its
// lifetime.
type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	OperatorID  int64         `koanf:"operator_id" mapstructure:"operator_id"`
	CallTimeout time.Duration `koanf:"call_timeout" mapstructure:"call_timeout"`
	Sweep       SweepConfig   `koanf:"sweep" mapstructure:"sweep"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "channelgate",
		CallTimeout: 10 * time.Second,
		Sweep: SweepConfig{
			Interval:     time.Minute,
			InitialDelay: 10 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OperatorID == 0 {
		return fmt.Errorf("core: operator_id is required")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("core: call_timeout must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("core: sweep interval must be positive")
	}
	if c.Sweep.InitialDelay < 0 {
		return fmt.Errorf("core: sweep initial_delay must not be negative")
	}
	return nil
}
