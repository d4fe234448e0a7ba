// Command devicegw is the real-time gateway between a fleet of embedded edge nodes and a set of
// browser subscribers: mDNS discovery, TCP/UDP/serial device connectivity, event fan-out, and a
// websocket subscriber channel.
//
//	devicegw serve                 # run the gateway (discovery, transports, subscriber channel)
//	devicegw devices list          # print the current device/connection-state table
//
// Mirrors aldrin-isaac-newtron/cmd/newtest's root-command-with-verb-subcommands shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:               "devicegw",
	Short:             "Real-time gateway for TCP/UDP/serial edge devices",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./devicegw.yaml or $HOME/.config/devicegw/devicegw.yaml)")
	rootCmd.PersistentFlags().String("listen-addr", "", "subscriber channel listen address")
	rootCmd.PersistentFlags().Int("device-port", 0, "shared TCP/UDP device port")
	rootCmd.PersistentFlags().String("serial-port", "", "serial device path, empty disables UART")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	must(viper.BindPFlag("listen_addr", rootCmd.PersistentFlags().Lookup("listen-addr")))
	must(viper.BindPFlag("device_port", rootCmd.PersistentFlags().Lookup("device-port")))
	must(viper.BindPFlag("serial_port", rootCmd.PersistentFlags().Lookup("serial-port")))
	must(viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")))

	rootCmd.AddCommand(newServeCmd(), newDevicesCmd())
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
