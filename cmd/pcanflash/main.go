package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/peak-linux/pcanflash/pkg/bootproto"
	"github.com/peak-linux/pcanflash/pkg/canbus"
)

var rootCmd = &cobra.Command{
	Use:   "pcanflash",
	Short: "pcanflash reprograms PCAN router modules over a CAN bus",
	Long: `Discovers bootloader-capable router modules on a SocketCAN interface,
resolves their hardware variant and flashes a firmware image block by
block, patching the embedded checksum table on the way out.`,
	SilenceUsage: true,
}

// replyTimeout bounds every blocking receive, including the window in
// which announce replies are collected.
const replyTimeout = time.Second

func main() {
	flashCmd.Flags().IntVarP(&flashModuleID, "module", "i", -1, "Module id to flash, skips the question when multiple modules are discovered")
	flashCmd.Flags().BoolVarP(&flashReset, "reset", "r", false, "Reset the module after flashing")
	flashCmd.Flags().BoolVarP(&flashDryRun, "dry-run", "d", false, "Perform all computation but do not send erase/write/control commands")
	flashCmd.Flags().StringVar(&flashTrace, "trace", "", "Write a frame transcript to the given path ('auto' for a file under the user state directory)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(flashCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

// openBus opens the CAN socket, optionally with a frame transcript
// attached. The returned cleanup closes both.
func openBus(ifname, trace string) (*canbus.Socket, func(), error) {
	sock, err := canbus.Open(ifname, bootproto.ID)
	if err != nil {
		return nil, nil, err
	}
	var tr *canbus.Trace
	if trace != "" {
		path := trace
		if path == "auto" {
			path = ""
		}
		tr, err = canbus.NewTrace(path)
		if err != nil {
			sock.Close()
			return nil, nil, err
		}
		fmt.Printf("writing frame transcript to %s\n", tr.Path())
		sock.SetTrace(tr)
	}
	return sock, func() {
		sock.Close()
		tr.Close()
	}, nil
}

func printModules(modules map[uint8]*bootproto.Module) {
	fmt.Printf("\nfound modules:\n\n")
	for slot := uint8(0); slot < bootproto.MaxModules; slot++ {
		m, ok := modules[slot]
		if !ok {
			continue
		}
		fmt.Printf("module id %02d (ppcan hw id %d)\n", m.Slot, m.PrintedHwID())
		fmt.Printf(" - date %02X.%02X.20%02X bootloader %s\n", m.Day, m.Month, m.Year, m.Version)
		fmt.Printf(" - hardware %d (%s) flash type %d (%s)\n", m.HwType, m.HwName, m.FlashType, m.FlashName)
	}
}
