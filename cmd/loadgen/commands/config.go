package commands

import "time"

//CLIConfig contains configuration for the loadgen command
type CLIConfig struct {
	Target   string        `mapstructure:"connect"`
	ClientID uint32        `mapstructure:"client-id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Discard  bool          `mapstructure:"discard"`
	LogLevel string        `mapstructure:"log"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Target:   "127.0.0.1:7080",
		ClientID: 1,
		Timeout:  time.Second,
		LogLevel: "debug",
	}
}
