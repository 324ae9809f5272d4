package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ellery/kiln/internal/client"
	"github.com/ellery/kiln/internal/config"
	"github.com/ellery/kiln/internal/input"
	"github.com/ellery/kiln/internal/mux"
	"github.com/ellery/kiln/internal/rangeset"
	"github.com/ellery/kiln/internal/vt"
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	attachSocket  string
	attachCommand string
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to a mux server and mirror a pane",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAttach()
	},
}

func init() {
	attachCmd.Flags().StringVar(&attachSocket, "socket", "", "unix socket path")
	attachCmd.Flags().StringVar(&attachCommand, "command", "", "command to spawn in the remote pane")
}

func runAttach() error {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("attach requires a terminal")
	}

	socket := attachSocket
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

	cfgPath, _ := config.Path()
	cfg := config.Load(cfgPath, func(msg string) { log.Print(msg) })

	domain := client.NewRemoteDomain("remote", c, cfg.ScrollbackLines)
	if err := domain.Attach(); err != nil {
		return err
	}

	scr, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open screen: %w", err)
	}
	if err := scr.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer scr.Fini()

	cols, rows := scr.Size()
	m := mux.New()
	m.AddDomain(domain)
	_, p, _, err := m.SpawnTabOrWindow(0, "remote",
		mux.SpawnCommand{Command: attachCommand},
		mux.PtySize{Rows: rows, Cols: cols}, cfg.DefaultWorkspace)
	if err != nil {
		return err
	}
	rp := p.(*client.RemotePane)

	return attachLoop(scr, rp)
}

// attachLoop drives a minimal mirror view: poll on the mirror's adaptive
// cadence, draw the viewport, and forward keys.
func attachLoop(scr tcell.Screen, rp *client.RemotePane) error {
	mirror := rp.Mirror()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := scr.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	poll := time.NewTimer(client.BasePollInterval)
	defer poll.Stop()
	redraw := time.NewTicker(33 * time.Millisecond)
	defer redraw.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch tev := ev.(type) {
			case *tcell.EventKey:
				if tev.Key() == tcell.KeyCtrlQ {
					return nil
				}
				key := input.KeyCode{Key: tev.Key(), Rune: tev.Rune()}
				data := input.EncodeKey(key, input.ModsFromEvent(tev), vt.InputModes{})
				if len(data) > 0 {
					_ = rp.SendText(string(data))
				}
			case *tcell.EventPaste:
				// Paste markers carry no text and are ignored; pasted
				// characters arrive as key events and are forwarded above
			case *tcell.EventResize:
				cols, rows := tev.Size()
				_ = rp.Resize(rows, cols)
			}
		case <-poll.C:
			next := mirror.PollTick()
			poll.Reset(next)
		case <-redraw.C:
			drawMirror(scr, rp)
			if rp.IsDead() {
				return nil
			}
		}
	}
}

// drawMirror paints the mirror's viewport with tcell.
func drawMirror(scr tcell.Screen, rp *client.RemotePane) {
	mirror := rp.Mirror()
	viewport := mirror.Viewport()
	_, lines := rp.GetLines(rangeset.Range{Start: viewport.Start, End: viewport.End})

	width, _ := scr.Size()
	for y, line := range lines {
		x := 0
		for _, c := range line.Cells() {
			if x >= width {
				break
			}
			style := tcell.StyleDefault
			if c.Attrs.Reverse() {
				style = style.Reverse(true)
			}
			if c.Attrs.Underline() != 0 {
				style = style.Underline(true)
			}
			var r rune = ' '
			for _, rr := range c.Text {
				r = rr
				break
			}
			scr.SetContent(x, y, r, nil, style)
			x += maxInt(c.Width, 1)
		}
		for ; x < width; x++ {
			scr.SetContent(x, y, ' ', nil, tcell.StyleDefault)
		}
		mirror.Rendered(viewport.Start + int64(y))
	}

	// Tardy connections overlay a right-aligned status on the top row
	if mirror.IsTardy() && mirror.ShouldInvalidateTardy() {
		status := mirror.TardyStatus(width)
		for i, r := range []rune(status) {
			if i >= width {
				break
			}
			scr.SetContent(i, 0, r, nil, tcell.StyleDefault.Reverse(true))
		}
	}

	cur := rp.CursorPosition()
	if cur.Visible {
		scr.ShowCursor(cur.X, cur.Y)
	} else {
		scr.HideCursor()
	}
	scr.Show()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
