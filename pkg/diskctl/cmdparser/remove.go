package cmdparser

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diskwarden/diskwarden/pkg/diskctl/manager"
)

var diskRemove = &cobra.Command{
	Use:   "remove {device}",
	Args:  cobra.ExactArgs(1),
	Short: "Retire a disk from the storage backend.",
	Long: "Retire a disk from the storage backend. The data the disk held must\n" +
		"already be drained or replicated elsewhere; check with\n" +
		"'diskctl safe-to-remove' first.",
	Example: "diskctl remove /dev/sdb",
	RunE:    diskRemoveRunE,
}

func diskRemoveRunE(_ *cobra.Command, args []string) error {
	c, err := manager.NewClient()
	if err != nil {
		return err
	}

	if err := c.RemoveDisk(args[0]); err != nil {
		return err
	}
	fmt.Printf("disk %s removed\n", args[0])
	return nil
}
