package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sdbsctl",
	Short: "Attach a Sheepdog-backed VDI as a SCSI backing store",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.sdbsctl.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable the pprof debug endpoint")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".sdbsctl")
		viper.AddConfigPath("$HOME")
	}
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}
