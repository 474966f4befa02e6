package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sdstack/sdbs/backingstore"
	"github.com/sdstack/sdbs/config"
)

var attachCmd = &cobra.Command{
	Use:   "attach [vdi-name]",
	Short: "open a VDI as LU 0 and report its size",
	Args:  cobra.ExactArgs(1),
	RunE:  attachAction,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func attachAction(cmd *cobra.Command, args []string) error {
	sdCfg, err := config.DecodeSheepdogConfig(viper.GetStringMap("sheepdog"))
	if err != nil {
		return err
	}

	registry := backingstore.NewRegistry()
	backingstore.RegisterSheepdog(registry, sdCfg.Network, sdCfg.Address, sdCfg.DialTimeout)

	mod, ok := registry.Lookup("sheepdog")
	if !ok {
		return backingstore.ErrModuleNotFound("sheepdog")
	}

	const lu = 0
	if err := mod.Init(lu); err != nil {
		return err
	}
	defer mod.Exit(lu)

	size, err := mod.Open(lu, args[0])
	if err != nil {
		return fmt.Errorf("open %q: %w", args[0], err)
	}
	defer mod.Close(lu)

	fmt.Printf("attached %q as lu %d against %s, size=%d bytes\n", args[0], lu, sdCfg.Address, size)
	return nil
}
