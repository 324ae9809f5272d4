// Command kiln is the thin CLI over the terminal core: it can run the mux
// server, attach to one, and list its panes. The GUI front end links the
// same internal packages.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ellery/kiln/internal/server"
	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
)

// Version is stamped by the build pipeline.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "kiln",
	Short:   "kiln terminal multiplexer",
	Version: Version,
	Long:    "kiln serves, mirrors and multiplexes terminal panes.",
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			// Wrap panics so crash reports carry a usable stack
			err := errors.Wrap(r, 2)
			fmt.Fprintf(os.Stderr, "kiln fatal error: %v\n%s", err, err.ErrorStack())
			os.Exit(1)
		}
	}()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	rootCmd.AddCommand(serveCmd, attachCmd, lsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultSocketPath resolves the session socket shared by serve and attach.
func defaultSocketPath() (string, error) {
	dir, err := server.SocketDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "default.sock"), nil
}
