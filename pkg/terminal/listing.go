package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/asmfmt"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/state"
)

const rowCacheSize = 4096

const (
	settleQuiet   = 50 * time.Millisecond
	settleTimeout = 2 * time.Second
)

// maxOpcodeColumn bounds the opcode column; longer instructions overflow
// into the text column.
const maxOpcodeColumn = 8 * 3

type rowKey struct {
	rec      state.Record
	settings settings.Settings
}

// rowCache keeps formatted instructions. Listings are printed again after
// every command and mostly show the same rows.
type rowCache struct {
	c *lru.Cache
}

func newRowCache() *rowCache {
	c, err := lru.New(rowCacheSize)
	if err != nil {
		panic(err)
	}
	return &rowCache{c: c}
}

func (rc *rowCache) format(rec state.Record, s settings.Settings) asmfmt.Formatted {
	k := rowKey{rec: rec, settings: s}
	if v, ok := rc.c.Get(k); ok {
		return v.(asmfmt.Formatted)
	}
	f := asmfmt.Format(rec.RawText, s)
	rc.c.Add(k, f)
	return f
}

// settle waits for the session to become quiet: no refresh outstanding
// and no change published for settleQuiet. It gives up after
// settleTimeout.
func (t *Term) settle(ctx context.Context) state.Model {
	ch, cancel := t.disp.Subscribe()
	defer cancel()
	deadline := time.NewTimer(settleTimeout)
	defer deadline.Stop()
	quiet := time.NewTimer(settleQuiet)
	defer quiet.Stop()
	for {
		select {
		case <-ch:
			if !quiet.Stop() {
				<-quiet.C
			}
			quiet.Reset(settleQuiet)
		case <-quiet.C:
			m := t.disp.Snapshot()
			if !m.Session.Refreshing() {
				return m
			}
			quiet.Reset(settleQuiet)
		case <-deadline.C:
			return t.disp.Snapshot()
		case <-ctx.Done():
			return t.disp.Snapshot()
		}
	}
}

// printListing waits for the window to settle and prints it.
func (t *Term) printListing(ctx callContext) error {
	m := t.settle(ctx.Ctx)
	t.printWindow(t.stdout, m)
	return nil
}

// printcontext prints the execution status followed by the listing.
func (t *Term) printcontext(ctx callContext) error {
	m := t.settle(ctx.Ctx)
	t.printStatus(t.stdout, m)
	t.printWindow(t.stdout, m)
	return nil
}

func (t *Term) printStatus(w io.Writer, m state.Model) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", m.Session.Status)
	if m.Session.ThreadID != "" {
		fmt.Fprintf(&b, " thread %s", m.Session.ThreadID)
	}
	if ip, ok := m.Session.InstructionPointer(); ok {
		fmt.Fprintf(&b, " at %s", ip)
	}
	if p := m.Session.Progress; p.Show {
		fmt.Fprintf(&b, " [%d%% %s]", p.Percent, p.Message)
	}
	t.Println(t.conf.IPColor, "> ", b.String())
}

// printWindow prints the instruction window. The instruction pointer row
// is marked with =>, selected rows with *; modified opcode bytes are
// colored.
func (t *Term) printWindow(out io.Writer, m state.Model) {
	w := bufio.NewWriter(out)
	defer w.Flush()
	if len(m.Session.Window) == 0 {
		fmt.Fprintln(w, "no instructions loaded")
		return
	}
	ip, hasIP := m.Session.InstructionPointer()

	addrWidth, opWidth := 0, 0
	for _, rec := range m.Session.Window {
		if n := len(rec.Address); n > addrWidth {
			addrWidth = n
		}
		if n := len(rec.Opcodes); n > opWidth {
			opWidth = n
		}
	}
	if opWidth > maxOpcodeColumn {
		opWidth = maxOpcodeColumn
	}

	for _, rec := range m.Session.Window {
		marker := "  "
		if hasIP && rec.Address == ip {
			marker = t.colorize(t.conf.IPColor, "=>")
		}
		sel := " "
		addr := fmt.Sprintf("%-*s", addrWidth, rec.Address)
		if m.Selection.Contains(rec.Address) {
			sel = "*"
			addr = t.reverse(addr)
		}

		ops := t.opcodes(rec, m.Patches)
		if pad := opWidth - len(rec.Opcodes); pad > 0 {
			ops += strings.Repeat(" ", pad)
		}

		text := t.rows.format(rec, m.Settings).Text()
		if c := m.EffectiveComment(rec); c != "" {
			text += "  ; " + c
		}
		used := 2 + 1 + 1 + addrWidth + 2 + opWidth + 2
		if avail := t.width - used; avail > 3 && len(text) > avail {
			text = text[:avail-3] + "..."
		}
		fmt.Fprintf(w, "%s%s %s  %s  %s\n", marker, sel, addr, ops, text)
	}
}

// opcodes returns the opcode bytes of rec with the modified ones colored.
func (t *Term) opcodes(rec state.Record, p state.Patches) string {
	if t.dumb || !p.InstructionModified(rec) {
		return rec.Opcodes
	}
	fields := strings.Fields(rec.Opcodes)
	for i := range fields {
		if p.Modified(address.Offset(rec.Address, int64(i))) {
			fields[i] = t.colorize(t.conf.ModifiedColor, fields[i])
		}
	}
	return strings.Join(fields, " ")
}
