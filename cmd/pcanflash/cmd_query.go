package main

import (
	"github.com/spf13/cobra"

	"github.com/peak-linux/pcanflash/pkg/bootproto"
)

var queryCmd = &cobra.Command{
	Use:   "query [interface]",
	Short: "Discover modules on the bus and report them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sock, cleanup, err := openBus(args[0], "")
		if err != nil {
			return err
		}
		defer cleanup()

		modules, err := bootproto.Discover(sock, replyTimeout)
		if err != nil {
			return err
		}
		printModules(modules)
		return nil
	},
}
