package main

import (
	"os"

	"github.com/diskwarden/diskwarden/pkg/diskctl/cmdparser"
)

func main() {
	err := cmdparser.Diskctl.Execute()
	if err != nil {
		os.Exit(1)
	}
}
