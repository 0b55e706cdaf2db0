package commands

import (
	"github.com/pretzelio/pretzel/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for pretzel
var RootCmd = &cobra.Command{
	Use:              "pretzel",
	Short:            "pretzel graph processing",
	TraverseChildren: true,
}
