package vt

import (
	"encoding/base64"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/ellery/kiln/internal/cell"
	"github.com/ellery/kiln/internal/color"
)

// OscDispatch routes an OSC string by its numeric selector. Malformed
// strings are logged and dropped.
func (t *Terminal) OscDispatch(params [][]byte) {
	if len(params) == 0 {
		return
	}
	selector, err := strconv.Atoi(string(params[0]))
	if err != nil {
		log.Printf("vt: ignoring OSC with selector %q", params[0])
		return
	}

	switch selector {
	case 0, 2: // icon+title / title
		title := joinOsc(params[1:])
		if title != t.title {
			t.title = title
			t.stateChanged = true
			t.events.TitleChanged(title)
		}
	case 1: // icon only: accepted, unused
	case 4: // set palette: 4;idx;spec[;idx;spec...]
		t.oscSetPalette(params[1:])
	case 104: // reset palette entries, or all when no argument
		t.oscResetPalette(params[1:])
	case 7: // working directory as file:// URI
		t.oscWorkingDir(joinOsc(params[1:]))
	case 8: // hyperlink: 8;params;uri
		t.oscHyperlink(params[1:])
	case 9: // iTerm2-style notification
		t.events.Notification(joinOsc(params[1:]))
	case 777: // urxvt notify module
		parts := params[1:]
		if len(parts) >= 3 && string(parts[0]) == "notify" {
			t.events.Notification(string(parts[1]) + ": " + string(parts[2]))
		}
	case 52: // clipboard
		t.oscClipboard(params[1:])
	case 133: // shell integration prompt markers: accepted, unused
	default:
		log.Printf("vt: ignoring OSC %d", selector)
	}
}

// joinOsc reassembles the payload of selectors whose argument may itself
// contain semicolons.
func joinOsc(parts [][]byte) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = string(p)
	}
	return strings.Join(strs, ";")
}

func (t *Terminal) oscSetPalette(args [][]byte) {
	changed := false
	for i := 0; i+1 < len(args); i += 2 {
		idx, err := strconv.Atoi(string(args[i]))
		if err != nil || idx < 0 || idx > 255 {
			continue
		}
		c, err := color.Parse(string(args[i+1]))
		if err != nil {
			log.Printf("vt: OSC 4 bad color %q: %v", args[i+1], err)
			continue
		}
		t.palette.Set(uint8(idx), c)
		changed = true
	}
	if changed {
		t.paletteDirty = true
		t.stateChanged = true
		t.events.PaletteChanged()
	}
}

func (t *Terminal) oscResetPalette(args [][]byte) {
	if len(args) == 0 || (len(args) == 1 && len(args[0]) == 0) {
		t.palette.ResetAll()
	} else {
		for _, a := range args {
			if idx, err := strconv.Atoi(string(a)); err == nil && idx >= 0 && idx <= 255 {
				t.palette.Reset(uint8(idx))
			}
		}
	}
	t.paletteDirty = true
	t.stateChanged = true
	t.events.PaletteChanged()
}

func (t *Terminal) oscWorkingDir(uri string) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		log.Printf("vt: OSC 7 bad uri %q", uri)
		return
	}
	dir := u.Path
	if dir == "" {
		return
	}
	if dir != t.workingDir {
		t.workingDir = dir
		t.stateChanged = true
		t.events.WorkingDirChanged(dir)
	}
}

func (t *Terminal) oscHyperlink(args [][]byte) {
	if len(args) < 2 {
		return
	}
	linkParams := string(args[0])
	uri := joinOsc(args[1:])

	if uri == "" {
		t.currentLink = nil
		return
	}

	id := ""
	for _, kv := range strings.Split(linkParams, ":") {
		if strings.HasPrefix(kv, "id=") {
			id = strings.TrimPrefix(kv, "id=")
		}
	}
	t.currentLink = &cell.Hyperlink{ID: id, URI: uri}
}

func (t *Terminal) oscClipboard(args [][]byte) {
	if len(args) < 2 {
		return
	}
	payload := string(args[1])
	if payload == "?" {
		// Clipboard query: not answered, reading the clipboard from the
		// application side is refused
		return
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		log.Printf("vt: OSC 52 bad base64: %v", err)
		return
	}
	t.events.SetClipboard(string(data))
}
