package main

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/peak-linux/pcanflash/pkg/bootproto"
	"github.com/peak-linux/pcanflash/pkg/flash"
	"github.com/peak-linux/pcanflash/pkg/fwimage"
)

var (
	flashModuleID int
	flashReset    bool
	flashDryRun   bool
	flashTrace    string
)

var flashCmd = &cobra.Command{
	Use:   "flash [interface] [image.bin]",
	Short: "Flash a firmware image onto a module",
	Long: `Flashes a flat binary firmware image (optionally xz-compressed) onto one
discovered module: switches it into the bootloader, erases all flash
blocks, writes every non-empty image block and ends with the optional
reset. Any failure aborts the session; re-run from the beginning.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := fwimage.Load(args[1])
		if err != nil {
			return err
		}

		sock, cleanup, err := openBus(args[0], flashTrace)
		if err != nil {
			return err
		}
		defer cleanup()

		modules, err := bootproto.Discover(sock, replyTimeout)
		if err != nil {
			return err
		}
		printModules(modules)

		mod, err := selectModule(modules, flashModuleID)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(int(img.Size()),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("writing"),
			progressbar.OptionShowBytes(true),
		)
		session, err := flash.New(sock, mod, img, flash.Options{
			DryRun:         flashDryRun,
			ResetRequested: flashReset,
			Progress: func(done, total uint32) {
				bar.Set(int(done))
			},
		})
		if err != nil {
			return err
		}

		fmt.Printf("\nflashing module id %d with flash transfer data len %d\n",
			mod.Slot, session.TransferLen())
		if flashDryRun {
			slog.Info("dry run, no erase/write/control commands will be sent")
		}

		if err := session.Run(); err != nil {
			fmt.Println()
			return err
		}
		bar.Finish()
		fmt.Println()
		slog.Info("done")
		return nil
	},
}

// selectModule picks the target module: the explicitly requested slot,
// or the only discovered module. Multiple candidates without an
// explicit choice are a configuration error.
func selectModule(modules map[uint8]*bootproto.Module, requested int) (*bootproto.Module, error) {
	if requested >= 0 {
		if requested >= bootproto.MaxModules {
			return nil, fmt.Errorf("module id %d out of range, slots go up to %d", requested, bootproto.MaxModules-1)
		}
		m, ok := modules[uint8(requested)]
		if !ok {
			return nil, fmt.Errorf("module id %d not found in module list", requested)
		}
		return m, nil
	}
	if len(modules) == 1 {
		for _, m := range modules {
			return m, nil
		}
	}
	var slots []int
	for slot := range modules {
		slots = append(slots, int(slot))
	}
	sort.Ints(slots)
	return nil, fmt.Errorf("multiple modules found %v, select one with --module", slots)
}
