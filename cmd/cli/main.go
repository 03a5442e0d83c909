package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    int
	jsonOutput bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "clusterwatch",
		Short: "clusterwatch - cluster status CLI",
		Long:  `clusterwatch queries a clusterwatchd daemon for the Pacemaker, DRBD and VM state it keeps of a cluster`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:9400", "Server address")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 30, "Request timeout in seconds")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(dcCmd())
	rootCmd.AddCommand(hostsCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(drbdCmd())
	rootCmd.AddCommand(vmsCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(saveLayoutCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
