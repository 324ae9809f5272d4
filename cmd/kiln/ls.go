package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ellery/kiln/internal/client"
	"github.com/ellery/kiln/internal/wire"
	"github.com/spf13/cobra"
)

var lsSocket string

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List panes on the mux server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLs()
	},
}

func init() {
	lsCmd.Flags().StringVar(&lsSocket, "socket", "", "unix socket path")
}

func runLs() error {
	socket := lsSocket
	if socket == "" {
		var err error
		socket, err = defaultSocketPath()
		if err != nil {
			return err
		}
	}

	c, err := client.DialUnix(socket)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Connect(); err != nil {
		return err
	}

	resp, err := c.Request(&wire.ListPanes{})
	if err != nil {
		return err
	}
	list, ok := resp.(*wire.ListPanesResponse)
	if !ok {
		return fmt.Errorf("unexpected response %T", resp)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WINDOW\tTAB\tPANE\tWORKSPACE\tSIZE\tTITLE\tCWD")
	for _, p := range list.Panes {
		active := ""
		if p.IsActive {
			active = "*"
		}
		fmt.Fprintf(w, "%d\t%d\t%d%s\t%s\t%dx%d\t%s\t%s\n",
			p.WindowID, p.TabID, p.PaneID, active, p.Workspace,
			p.Cols, p.Rows, p.Title, p.WorkingDir)
	}
	return w.Flush()
}
