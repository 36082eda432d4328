// remotefs is the single binary for all three roles in the relay fabric:
// an agent that exposes a local filesystem, a relay that brokers requests
// between clients and agents, and a client that drives a filesystem
// through the relay. Which role runs is chosen by subcommand, grounded on
// devopsclaw's cobra root command wiring a flat set of independently
// runnable subcommands onto one binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "remotefs",
		Short: "remotefs — relay-mediated remote filesystem access",
		Long: `remotefs connects a client to a remote filesystem through a relay.

Agents expose a local filesystem and dial out to a relay. Clients dial the
same relay and issue filesystem operations that the relay routes to the
right agent. Neither side ever needs an inbound port.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAgentCmd(),
		newRelayCmd(),
		newClientCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			v := version
			if gitCommit != "" {
				v += " (" + gitCommit + ")"
			}
			fmt.Printf("remotefs %s\n", v)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
