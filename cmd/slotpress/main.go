package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "slotpress"}

	root.AddCommand(daemonCMD(), articleCMD(), migrateCMD())
	_ = root.Execute()
}
