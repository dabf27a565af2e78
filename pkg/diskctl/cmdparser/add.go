package cmdparser

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diskwarden/diskwarden/pkg/api"
	"github.com/diskwarden/diskwarden/pkg/diskctl/manager"
)

var (
	addOsdID            uint64
	addJournal          string
	addJournalPartition uint32
)

var diskAdd = &cobra.Command{
	Use:   "add {device}",
	Args:  cobra.ExactArgs(1),
	Short: "Hand a disk over to the storage backend.",
	Long: "Hand a disk over to the storage backend. The device is the full path,\n" +
		"like '/dev/sdb'. The osd flags only apply to a ceph backend and are\n" +
		"ignored by gluster.",
	Example: "diskctl add /dev/sdb\n" +
		"diskctl add /dev/sdb --osd-id 12 --journal /dev/nvme0n1 --journal-partition 2",
	RunE: diskAddRunE,
}

func init() {
	// Disk add flags
	diskAdd.Flags().Uint64Var(&addOsdID, "osd-id", 0, "Reuse a specific osd id instead of a cluster-assigned one")
	diskAdd.Flags().StringVar(&addJournal, "journal", "", "Device carrying the filestore journal")
	diskAdd.Flags().Uint32Var(&addJournalPartition, "journal-partition", 0, "Partition number on the journal device")
}

func diskAddRunE(cmd *cobra.Command, args []string) error {
	c, err := manager.NewClient()
	if err != nil {
		return err
	}

	opts := manager.AddOptions{Device: args[0], Journal: addJournal}
	if cmd.Flags().Changed("osd-id") {
		opts.OsdID = api.Uint64(addOsdID)
	}
	if cmd.Flags().Changed("journal-partition") {
		opts.JournalPartition = api.Uint32(addJournalPartition)
	}

	if err := c.AddDisk(opts); err != nil {
		return err
	}
	fmt.Printf("disk %s added\n", args[0])
	return nil
}
