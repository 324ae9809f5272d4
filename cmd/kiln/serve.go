package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/config"
	"github.com/ellery/kiln/internal/mux"
	"github.com/ellery/kiln/internal/pane"
	"github.com/ellery/kiln/internal/server"
	"github.com/spf13/cobra"
	"github.com/zyedidia/clipper"
)

var serveSocket string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mux server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "unix socket path (default under ~/.kiln/sockets)")
}

// clipboardDelegate adapts clipper onto the pane clipboard interface.
// Initialization is lazy: some platforms dislike early clipboard access.
type clipboardDelegate struct {
	clip clipper.Clipboard
}

func (c *clipboardDelegate) SetClipboard(data string) error {
	if c.clip == nil {
		clip, err := clipper.GetClipboard(clipper.Clipboards...)
		if err != nil {
			return fmt.Errorf("clipboard init: %w", err)
		}
		c.clip = clip
	}
	return c.clip.WriteAll(clipper.RegClipboard, []byte(data))
}

func runServe() error {
	cfgPath, err := config.Path()
	if err != nil {
		return err
	}
	watcher, err := config.NewWatcher(cfgPath, func(msg string) { log.Print(msg) })
	if err != nil {
		return err
	}
	defer watcher.Close()
	cfg := watcher.Current()

	m := mux.New()
	domain := mux.NewLocalDomain(mux.LocalDomainOptions{
		ScrollbackCap: cfg.ScrollbackLines,
		Clipboard:     &clipboardDelegate{},
		LinkRules:     cell.DefaultRules,
		OnDamage:      func() {},
		OnDead:        func(id pane.ID) { m.RemovePane(id) },
	})
	m.AddDomain(domain)

	exe, _ := os.Executable()
	srv := server.New(m, server.Info{
		Version:    Version,
		Executable: exe,
		ConfigPath: cfgPath,
	})

	socket := serveSocket
	if socket == "" {
		socket, err = defaultSocketPath()
		if err != nil {
			return err
		}
	}
	if err := srv.ListenUnix(socket); err != nil {
		return err
	}

	// Config regeneration re-advertises palettes to every client
	watcher.OnReload(func(*config.Config) { srv.BroadcastPalettes() })

	log.Printf("kiln: serving on %s", socket)
	srv.Run()
	return nil
}
