package worker

import (
	"testing"

	"github.com/pretzelio/pretzel/src/common"
	"github.com/sirupsen/logrus"
)

type Config struct {
	JobID                      string `mapstructure:"job-id"`
	TaskIndex                  int    `mapstructure:"task-index"`
	Partitions                 int    `mapstructure:"partitions"`
	RequestRetries             int    `mapstructure:"request-retries"`
	SimulateFirstRequestClosed bool   `mapstructure:"simulate-first-request-closed"`
	Logger                     *logrus.Logger
}

func NewConfig(jobID string,
	taskIndex int,
	partitions int,
	requestRetries int,
	simulateFirstRequestClosed bool,
	logger *logrus.Logger) *Config {

	return &Config{
		JobID:                      jobID,
		TaskIndex:                  taskIndex,
		Partitions:                 partitions,
		RequestRetries:             requestRetries,
		SimulateFirstRequestClosed: simulateFirstRequestClosed,
		Logger:                     logger,
	}
}

func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		JobID:          "job_0",
		TaskIndex:      0,
		Partitions:     4,
		RequestRetries: 3,
		Logger:         logger,
	}
}

func TestConfig(t *testing.T) *Config {
	config := DefaultConfig()
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
