package commands

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pretzelio/pretzel/src/graph"
	"github.com/pretzelio/pretzel/src/net"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	config = NewDefaultCLIConfig()
	logger *logrus.Logger
)

func init() {
	RootCmd.Flags().String("connect", config.Target, "IP:Port of the worker to send messages to")
	RootCmd.Flags().Uint32("client-id", config.ClientID, "Client ID stamped on requests")
	RootCmd.Flags().Duration("timeout", config.Timeout, "TCP Timeout")
	RootCmd.Flags().Bool("discard", config.Discard, "discard output to stderr and sdout")
	RootCmd.Flags().String("log", config.LogLevel, "debug, info, warn, error, fatal, panic")
}

//RootCmd is the root command for loadgen
var RootCmd = &cobra.Command{
	Use:     "loadgen",
	Short:   "Vertex message generator for pretzel workers",
	PreRunE: loadConfig,
	RunE:    runLoadgen,
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runLoadgen(cmd *cobra.Command, args []string) error {

	trans, err := net.NewTCPTransport("127.0.0.1:0",
		"",
		2,
		config.Timeout,
		logger.WithField("component", "LOADGEN"))
	if err != nil {
		return err
	}
	defer trans.Close()

	var requestID uint64

	//Listen for input messages from tty
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fmt.Print("Enter <vertex> <payload>: ")
		text := scanner.Text()

		parts := strings.SplitN(text, " ", 2)
		if len(parts) != 2 {
			fmt.Println("Expecting <vertex> <payload>")
			continue
		}

		requestID++

		batch := net.MessageBatchRequest{
			RequestMeta: net.RequestMeta{
				ClientID:  config.ClientID,
				RequestID: requestID,
			},
			Messages: []graph.Message{
				{To: graph.VertexID(parts[0]), Payload: []byte(parts[1])},
			},
		}

		var out net.MessageBatchResponse
		if err := trans.SendMessages(config.Target, &batch, &out); err != nil {
			fmt.Printf("Error in SendMessages: %v\n", err)
			continue
		}

		fmt.Printf("Buffered by worker %d: %v\n", out.FromID, out.Success)
	}

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

func loadConfig(cmd *cobra.Command, args []string) error {

	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		return err
	}

	config, err = parseConfig()
	if err != nil {
		return err
	}

	logger = newLogger()
	logger.Level = logLevel(config.LogLevel)

	logger.WithFields(logrus.Fields{
		"connect":   config.Target,
		"client-id": config.ClientID,
		"timeout":   config.Timeout,
		"discard":   config.Discard,
		"log":       config.LogLevel,
	}).Debug("RUN")

	return nil
}

//Retrieve the default environment configuration.
func parseConfig() (*CLIConfig, error) {
	conf := NewDefaultCLIConfig()
	err := viper.Unmarshal(conf)
	if err != nil {
		return nil, err
	}
	return conf, err
}

func newLogger() *logrus.Logger {
	logger := logrus.New()

	pathMap := lfshook.PathMap{}

	_, err := os.OpenFile("loadgen_info.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open loadgen_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = "loadgen_info.log"
	}

	_, err = os.OpenFile("loadgen_debug.log", os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open loadgen_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = "loadgen_debug.log"
	}

	if err == nil && config.Discard {
		logger.Out = ioutil.Discard
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}

func logLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
