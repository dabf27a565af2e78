package cmdparser

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/diskwarden/diskwarden/pkg/diskctl/cmdparser/definitions"
)

var Diskctl = &cobra.Command{
	Use:   "diskctl",
	Args:  cobra.ExactArgs(0),
	Short: "Diskctl is the command-line client of the disk-manager daemon.",
	Long: "Diskctl manages the disks of a storage node through its disk-manager\n" +
		"daemon: listing them, handing them to the storage backend and retiring them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if definitions.Debug {
			log.SetLevel(log.DebugLevel)
		} else {
			// Log lines would garble the table output.
			log.SetOutput(io.Discard)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Root cmd will show help only
		return cmd.Help()
	},
}

func init() {
	// Diskctl flags
	Diskctl.PersistentFlags().BoolVar(&definitions.Debug, "debug", false, "Enable debug mode")
	Diskctl.PersistentFlags().StringVar(&definitions.Server, "server", definitions.DefaultServer, "Endpoint of the disk-manager daemon")
	Diskctl.PersistentFlags().StringVar(&definitions.Token, "token", os.Getenv("DISKWARDEN_TOKEN"), "Request token, defaults to $DISKWARDEN_TOKEN")
	Diskctl.PersistentFlags().DurationVar(&definitions.Timeout, "timeout", definitions.DefaultTimeout, "Set the request timeout")

	// Sub commands
	Diskctl.AddCommand(diskList, diskAdd, diskRemove, diskSafeToRemove)
}
