package mux

import (
	"fmt"
	"os"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/pane"
	"github.com/kballard/go-shellquote"
)

// DomainState says whether a domain can currently reach its panes.
type DomainState uint8

const (
	DomainDetached DomainState = iota
	DomainAttached
)

// PtySize is the size handed to a domain when spawning or splitting.
type PtySize struct {
	Rows        int
	Cols        int
	PixelWidth  int
	PixelHeight int
}

// SpawnCommand describes what a new pane should run.
type SpawnCommand struct {
	// Command is a shell-quoted command line; empty means the default
	// shell.
	Command string
	Cwd     string
	Env     []string
}

// Domain is a pane factory. The local domain forks children under PTYs;
// remote domains proxy pane creation over the wire protocol.
type Domain interface {
	Name() string
	State() DomainState
	// Spawnable reports whether SpawnPane can currently succeed.
	Spawnable() bool
	// SpawnPane creates a new pane of the given size.
	SpawnPane(id pane.ID, size PtySize, cmd SpawnCommand) (pane.Pane, error)
	// Attach brings a detached domain online; local domains are always
	// attached.
	Attach() error
	Detach() error
}

// LocalDomainOptions configures the built-in local domain.
type LocalDomainOptions struct {
	Name          string
	ScrollbackCap int
	Clipboard     pane.Clipboard
	LinkRules     []cell.Rule
	// OnDamage/OnDead are forwarded to each spawned pane.
	OnDamage func()
	OnDead   func(id pane.ID)
}

// LocalDomain forks child processes under PTYs on this machine.
type LocalDomain struct {
	opts LocalDomainOptions
}

// NewLocalDomain builds the local pane factory.
func NewLocalDomain(opts LocalDomainOptions) *LocalDomain {
	if opts.Name == "" {
		opts.Name = "local"
	}
	if opts.ScrollbackCap <= 0 {
		opts.ScrollbackCap = 3500
	}
	return &LocalDomain{opts: opts}
}

// Name returns the domain name.
func (d *LocalDomain) Name() string { return d.opts.Name }

// State reports attachment; the local domain is always attached.
func (d *LocalDomain) State() DomainState { return DomainAttached }

// Spawnable reports whether new panes may be created.
func (d *LocalDomain) Spawnable() bool { return true }

// Attach is a no-op for the local domain.
func (d *LocalDomain) Attach() error { return nil }

// Detach is refused: local panes have nowhere to go.
func (d *LocalDomain) Detach() error {
	return fmt.Errorf("local domain cannot detach")
}

// SpawnPane forks the requested command (or the user's shell) under a PTY.
func (d *LocalDomain) SpawnPane(id pane.ID, size PtySize, cmd SpawnCommand) (pane.Pane, error) {
	argv, err := buildArgv(cmd.Command)
	if err != nil {
		return nil, err
	}
	return pane.SpawnLocalPane(pane.LocalPaneOptions{
		ID:            id,
		Rows:          size.Rows,
		Cols:          size.Cols,
		ScrollbackCap: d.opts.ScrollbackCap,
		Argv:          argv,
		Dir:           cmd.Cwd,
		Env:           cmd.Env,
		Clipboard:     d.opts.Clipboard,
		LinkRules:     d.opts.LinkRules,
		OnDamage:      d.opts.OnDamage,
		OnDead:        d.opts.OnDead,
	})
}

// buildArgv splits a shell-quoted command line, defaulting to the user's
// shell.
func buildArgv(command string) ([]string, error) {
	if command == "" {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/bash"
		}
		return []string{shell, "-i"}, nil
	}
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}
