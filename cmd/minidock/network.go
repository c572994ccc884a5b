package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/minidock/minidock/pkg/network"
)

func newNetworkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage bridge networks",
	}

	var driver, subnet string
	create := &cobra.Command{
		Use:   "create --subnet CIDR NAME",
		Short: "Create a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nw, err := a.rt.Network.Create(args[0], driver, subnet)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), nw.Name)
			return nil
		},
	}
	create.Flags().StringVar(&driver, "driver", network.DriverBridge, "network driver")
	create.Flags().StringVar(&subnet, "subnet", "", "subnet in CIDR format, e.g. 10.0.0.0/24")
	create.MarkFlagRequired("subnet")

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List networks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nws, err := a.rt.Network.List()
			if err != nil {
				return err
			}
			return writeNetworks(cmd.OutOrStdout(), nws)
		},
	}

	remove := &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove a network",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.rt.Network.Remove(args[0])
		},
	}

	cmd.AddCommand(create, list, remove)
	return cmd
}

func writeNetworks(w io.Writer, nws []network.Network) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tIP RANGE\tDRIVER")
	for _, nw := range nws {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", nw.Name, nw.Subnet, nw.Driver)
	}
	return tw.Flush()
}
