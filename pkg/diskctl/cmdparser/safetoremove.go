package cmdparser

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diskwarden/diskwarden/pkg/diskctl/manager"
)

var diskSafeToRemove = &cobra.Command{
	Use:   "safe-to-remove {device}",
	Args:  cobra.ExactArgs(1),
	Short: "Check whether a disk can be pulled without data loss.",
	Long: "Check whether a disk can be pulled without data loss. The verdict is\n" +
		"printed and reflected in the exit code: 0 when the disk is safe to\n" +
		"remove, 1 when it is not.",
	Example: "diskctl safe-to-remove /dev/sdb",
	RunE:    diskSafeToRemoveRunE,
}

func diskSafeToRemoveRunE(_ *cobra.Command, args []string) error {
	c, err := manager.NewClient()
	if err != nil {
		return err
	}

	safe, err := c.SafeToRemove(args[0])
	if err != nil {
		return err
	}
	if !safe {
		fmt.Printf("disk %s is NOT safe to remove\n", args[0])
		os.Exit(1)
	}
	fmt.Printf("disk %s is safe to remove\n", args[0])
	return nil
}
