package cmdparser

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/diskwarden/diskwarden/pkg/diskctl/formatter"
	"github.com/diskwarden/diskwarden/pkg/diskctl/manager"
)

var typeFilter string

var diskList = &cobra.Command{
	Use:   "list",
	Args:  cobra.ExactArgs(0),
	Short: "List the disks of the storage node.",
	Long: "You can use 'diskctl list' to obtain the disk listing of the node the\n" +
		"daemon runs on, including the media class and partition count of each\n" +
		"device. Use '--type' to narrow the listing to one media class.",
	Example: "diskctl list\n" +
		"diskctl list --type nvme",
	RunE: diskListRunE,
}

func init() {
	// Disk list flags
	diskList.Flags().StringVar(&typeFilter, "type", "", "Filter disks by media class")
}

func diskListRunE(_ *cobra.Command, _ []string) error {
	c, err := manager.NewClient()
	if err != nil {
		return err
	}

	disks, err := c.ListDisks()
	if err != nil {
		return err
	}

	disksHeader := table.Row{"#", "DevPath", "Type", "Serial", "Partitions"}
	var disksRows []table.Row
	index := 0
	for _, disk := range disks {
		if typeFilter != "" && disk.Type.String() != typeFilter {
			continue
		}
		index++
		disksRows = append(disksRows, table.Row{index, disk.DevPath, disk.Type.String(),
			disk.GetSerialNumber(), len(disk.Partitions)})
	}

	formatter.PrintTable("Disks", disksHeader, disksRows)
	return nil
}
