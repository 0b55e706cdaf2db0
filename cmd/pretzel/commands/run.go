package commands

import (
	"github.com/pretzelio/pretzel/src/pretzel"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a pretzel worker
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run worker",
		PreRunE: loadConfig,
		RunE:    runPretzel,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runPretzel(cmd *cobra.Command, args []string) error {
	engine := pretzel.NewPretzel(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for worker requests")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for this worker")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Int("request-retries", _config.RequestRetries, "Attempts per outgoing request")
	cmd.Flags().Bool("tls", _config.TLS, "Secure worker connections with mutual TLS")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Spill messages to a badgerDB instead of in-mem")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")

	// Job
	cmd.Flags().String("job-id", _config.JobID, "ID of the job this worker takes part in")
	cmd.Flags().Int("task-index", _config.TaskIndex, "Index of this worker within the job")
	cmd.Flags().Int("partitions", _config.Partitions, "Number of graph partitions")
	cmd.Flags().Bool("simulate-first-request-closed", _config.SimulateFirstRequestClosed, "Drop the first inbound request; for fault-tolerance tests")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":                    _config.DataDir,
		"BindAddr":                   _config.BindAddr,
		"AdvertiseAddr":              _config.AdvertiseAddr,
		"ServiceAddr":                _config.ServiceAddr,
		"NoService":                  _config.NoService,
		"MaxPool":                    _config.MaxPool,
		"Store":                      _config.Store,
		"LogLevel":                   _config.LogLevel,
		"Moniker":                    _config.Moniker,
		"TCPTimeout":                 _config.TCPTimeout,
		"RequestRetries":             _config.RequestRetries,
		"TLS":                        _config.TLS,
		"JobID":                      _config.JobID,
		"TaskIndex":                  _config.TaskIndex,
		"Partitions":                 _config.Partitions,
		"SimulateFirstRequestClosed": _config.SimulateFirstRequestClosed,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/pretzel.toml (.json, .yaml also work)
	viper.SetConfigName("pretzel")       // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
