package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/export"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/state"
	"github.com/cpuview/cpuview/service"
	"github.com/cpuview/cpuview/service/api"
)

// ScrollStep is the number of bytes ScrollUp moves the anchor back by.
const ScrollStep = 64

// scrollKeep is the number of rows of the current window kept at the top
// after ScrollDown.
const scrollKeep = 5

// LoadSession restarts the last opened target.
func (d *Dispatcher) LoadSession(ctx context.Context) error {
	return d.OpenTarget(ctx, "")
}

// OpenTarget loads the target at path. The session is reset before the
// request so that events pushed by the new target are kept. The comments
// and patches returned by the backend replace the local ones.
func (d *Dispatcher) OpenTarget(ctx context.Context, path string) error {
	err := d.exec(ctx, func(m *state.Model) error {
		*m = m.Reset()
		d.record(m, logrus.InfoLevel, "loading %s", displayPath(path))
		return nil
	})
	if err != nil {
		return err
	}
	out, err := d.client.LoadSession(ctx, path)
	if err != nil {
		return d.fail(fmt.Errorf("load %s: %w", displayPath(path), err))
	}
	return d.exec(ctx, func(m *state.Model) error {
		m.Target = state.Target{Path: out.Path, PID: out.Metadata.PID, Arch: out.Metadata.Arch}
		if m.Target.Path == "" {
			m.Target.Path = path
		}
		if out.Metadata.ImageBase != "" {
			if base, err := address.Normalize(out.Metadata.ImageBase); err == nil {
				m.Target.ImageBase = base
			}
		}
		var effects []state.Effect
		m.Session, effects = m.Session.SetArch(out.Metadata.Arch)
		d.apply(effects)

		var errs []error
		m.Annotations, errs = m.Annotations.Load(out.Comments)
		for _, err := range errs {
			d.record(m, logrus.WarnLevel, "skipping comment: %v", err)
		}
		m.Patches, errs = m.Patches.Load(out.Patches)
		for _, err := range errs {
			d.record(m, logrus.WarnLevel, "skipping patch: %v", err)
		}
		msg := out.Message
		if msg == "" {
			msg = "session loaded"
		}
		d.record(m, logrus.InfoLevel, "%s: %s (%d comments, %d patched bytes)", msg, displayPath(m.Target.Path), m.Annotations.Len(), m.Patches.Len())
		return nil
	})
}

func displayPath(path string) string {
	if path == "" {
		return "last target"
	}
	return path
}

// CloseTarget stops the target and resets the session.
func (d *Dispatcher) CloseTarget(ctx context.Context) error {
	if err := d.client.StopSession(ctx); err != nil {
		return d.fail(fmt.Errorf("stop session: %w", err))
	}
	return d.exec(ctx, func(m *state.Model) error {
		*m = m.Reset()
		d.record(m, logrus.InfoLevel, "session stopped")
		return nil
	})
}

// ResetDatabase clears the persisted analysis of the current target, or of
// every target when all is set. Local comments and patches are cleared on
// success.
func (d *Dispatcher) ResetDatabase(ctx context.Context, all bool) error {
	out, err := d.client.ResetDatabase(ctx, all)
	if err != nil {
		return d.fail(fmt.Errorf("reset database: %w", err))
	}
	return d.exec(ctx, func(m *state.Model) error {
		m.Annotations = state.Annotations{}
		m.Patches = m.Patches.Reset()
		if all {
			d.record(m, logrus.InfoLevel, "database reset (%d entries deleted)", out.DeletedCount)
		} else {
			d.record(m, logrus.InfoLevel, "database reset for %s", displayPath(m.Target.Path))
		}
		var effects []state.Effect
		m.Session, effects = m.Session.Reload()
		d.apply(effects)
		return nil
	})
}

// Goto moves the view to input, recording the move in the history.
func (d *Dispatcher) Goto(ctx context.Context, input string) error {
	a, err := address.Normalize(input)
	if err != nil {
		return err
	}
	return d.exec(ctx, func(m *state.Model) error {
		d.navigate(m, a)
		return nil
	})
}

// navigate records the current anchor and a in the history and requests
// the window at a.
func (d *Dispatcher) navigate(m *state.Model, a address.Address) {
	m.History = m.History.Push(m.Session.Anchor).Push(a)
	var effects []state.Effect
	m.Session, effects = m.Session.Navigate(a)
	d.apply(effects)
}

// JumpToIP moves the view to the instruction pointer and selects it.
func (d *Dispatcher) JumpToIP(ctx context.Context) error {
	return d.exec(ctx, func(m *state.Model) error {
		ip, ok := m.Session.InstructionPointer()
		if !ok {
			return ErrNoInstructionPointer
		}
		d.navigate(m, ip)
		m.Selection = m.Selection.Select(ip)
		return nil
	})
}

// Back returns to the previous anchor.
func (d *Dispatcher) Back(ctx context.Context) error {
	return d.exec(ctx, func(m *state.Model) error {
		h, a, ok := m.History.Back(m.Session.Anchor)
		if !ok {
			return ErrHistoryEmpty
		}
		m.History = h
		var effects []state.Effect
		m.Session, effects = m.Session.Navigate(a)
		d.apply(effects)
		return nil
	})
}

// Forward undoes Back.
func (d *Dispatcher) Forward(ctx context.Context) error {
	return d.exec(ctx, func(m *state.Model) error {
		h, a, ok := m.History.Forward(m.Session.Anchor)
		if !ok {
			return ErrHistoryEmpty
		}
		m.History = h
		var effects []state.Effect
		m.Session, effects = m.Session.Navigate(a)
		d.apply(effects)
		return nil
	})
}

// ScrollUp moves the anchor ScrollStep bytes before the first window
// instruction. Scrolling does not touch the history.
func (d *Dispatcher) ScrollUp(ctx context.Context) error {
	return d.exec(ctx, func(m *state.Model) error {
		w := m.Session.Window
		if len(w) == 0 {
			return nil
		}
		var effects []state.Effect
		m.Session, effects = m.Session.Navigate(address.Offset(w[0].Address, -ScrollStep))
		d.apply(effects)
		return nil
	})
}

// ScrollDown moves the anchor so that the last rows of the window become
// the first ones.
func (d *Dispatcher) ScrollDown(ctx context.Context) error {
	return d.exec(ctx, func(m *state.Model) error {
		w := m.Session.Window
		if len(w) == 0 {
			return nil
		}
		i := len(w) - scrollKeep
		if i < 0 {
			i = len(w) - 1
		}
		var effects []state.Effect
		m.Session, effects = m.Session.Navigate(w[i].Address)
		d.apply(effects)
		return nil
	})
}

// Refresh requests the current window again.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	return d.exec(ctx, func(m *state.Model) error {
		var effects []state.Effect
		m.Session, effects = m.Session.Reload()
		d.apply(effects)
		return nil
	})
}

// Select replaces the selection with input.
func (d *Dispatcher) Select(ctx context.Context, input string) error {
	a, err := address.Normalize(input)
	if err != nil {
		return err
	}
	return d.exec(ctx, func(m *state.Model) error {
		m.Selection = m.Selection.Select(a)
		return nil
	})
}

// Toggle adds or removes input from the selection.
func (d *Dispatcher) Toggle(ctx context.Context, input string) error {
	a, err := address.Normalize(input)
	if err != nil {
		return err
	}
	return d.exec(ctx, func(m *state.Model) error {
		m.Selection = m.Selection.Toggle(a)
		return nil
	})
}

// SelectRange selects the window instructions between from and to.
func (d *Dispatcher) SelectRange(ctx context.Context, from, to string) error {
	a, err := address.Normalize(from)
	if err != nil {
		return err
	}
	b, err := address.Normalize(to)
	if err != nil {
		return err
	}
	return d.exec(ctx, func(m *state.Model) error {
		r := state.RangeBetween(m.Session.Window, a, b)
		if r == nil {
			return ErrNotInWindow
		}
		m.Selection = m.Selection.SelectRange(r)
		return nil
	})
}

// ExtendTo extends the selection from the last touched address to input.
func (d *Dispatcher) ExtendTo(ctx context.Context, input string) error {
	a, err := address.Normalize(input)
	if err != nil {
		return err
	}
	return d.exec(ctx, func(m *state.Model) error {
		if !m.Session.Contains(a) {
			return ErrNotInWindow
		}
		m.Selection = m.Selection.Extend(m.Session.Window, a)
		return nil
	})
}

// MoveSelection selects the instruction delta rows away from the last
// touched one.
func (d *Dispatcher) MoveSelection(ctx context.Context, delta int) error {
	return d.exec(ctx, func(m *state.Model) error {
		m.Selection = m.Selection.Move(m.Session.Window, delta)
		return nil
	})
}

func (d *Dispatcher) ClearSelection(ctx context.Context) error {
	return d.exec(ctx, func(m *state.Model) error {
		m.Selection = m.Selection.Clear()
		return nil
	})
}

// Patch writes fill over the selection. Each write is a separate command
// and marks its bytes only once the backend confirms it. The window is
// reloaded afterwards. Every failed write is returned.
func (d *Dispatcher) Patch(ctx context.Context, fill state.Fill) error {
	var cmds []state.WriteCommand
	err := d.exec(ctx, func(m *state.Model) error {
		plans, err := state.PlanPatch(m.Session.Window, m.Selection.Addresses(), fill)
		if err != nil {
			return err
		}
		for _, p := range plans {
			var c state.WriteCommand
			m.Patches, c = m.Patches.BeginWrite(p.Start, p.Data)
			cmds = append(cmds, c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range cmds {
		c := c
		out, err := d.client.WriteMemory(ctx, api.NewWriteMemoryIn(c.Start.String(), c.Data))
		if err != nil {
			err = fmt.Errorf("write %d bytes at %s: %w", len(c.Data), c.Start, err)
			d.update(func(m *state.Model) {
				m.Patches = m.Patches.Fail(c.ID)
				d.record(m, logrus.ErrorLevel, "%v", err)
			})
			errs = append(errs, err)
			continue
		}
		err = d.exec(context.Background(), func(m *state.Model) error {
			var err error
			m.Patches, err = m.Patches.ConfirmWrite(c.ID, out.Status, out.Error)
			if err != nil {
				d.record(m, logrus.ErrorLevel, "%v", err)
				return err
			}
			d.record(m, logrus.InfoLevel, "wrote %d bytes at %s", len(c.Data), c.Start)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if rerr := d.Refresh(context.Background()); rerr != nil && !errors.Is(rerr, ErrStopped) {
		errs = append(errs, rerr)
	}
	return errors.Join(errs...)
}

// Revert restores the original value of every modified byte covered by the
// selection, one confirmed command per byte.
func (d *Dispatcher) Revert(ctx context.Context) error {
	var cmds []state.RevertCommand
	err := d.exec(ctx, func(m *state.Model) error {
		targets := m.Patches.RevertTargets(m.Session.Window, m.Selection.Addresses())
		if len(targets) == 0 {
			return ErrNothingToRevert
		}
		for _, a := range targets {
			var c state.RevertCommand
			m.Patches, c = m.Patches.BeginRevert(a)
			cmds = append(cmds, c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range cmds {
		c := c
		out, err := d.client.RevertMemory(ctx, c.Address.String())
		if err != nil {
			err = fmt.Errorf("revert %s: %w", c.Address, err)
			d.update(func(m *state.Model) {
				m.Patches = m.Patches.Fail(c.ID)
				d.record(m, logrus.ErrorLevel, "%v", err)
			})
			errs = append(errs, err)
			continue
		}
		err = d.exec(context.Background(), func(m *state.Model) error {
			var err error
			m.Patches, err = m.Patches.ConfirmRevert(c.ID, out.Status, out.Error)
			if err != nil {
				d.record(m, logrus.ErrorLevel, "%v", err)
			}
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) < len(cmds) {
		d.update(func(m *state.Model) {
			d.record(m, logrus.InfoLevel, "reverted %d bytes", len(cmds)-len(errs))
		})
	}
	if rerr := d.Refresh(context.Background()); rerr != nil && !errors.Is(rerr, ErrStopped) {
		errs = append(errs, rerr)
	}
	return errors.Join(errs...)
}

// Comment saves text as the user comment of every selected address. An
// empty text deletes the comments. Each comment is applied once its save
// is confirmed.
func (d *Dispatcher) Comment(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	var targets []address.Address
	err := d.exec(ctx, func(m *state.Model) error {
		targets = m.Selection.Addresses()
		if len(targets) == 0 {
			return state.ErrEmptySelection
		}
		return nil
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range targets {
		a := a
		if err := d.client.SaveComment(ctx, a.String(), text); err != nil {
			errs = append(errs, d.fail(fmt.Errorf("save comment at %s: %w", a, err)))
			continue
		}
		d.update(func(m *state.Model) {
			m.Annotations = m.Annotations.SetUserComment(a, text)
		})
	}
	return errors.Join(errs...)
}

// Control sends an execution control command. Steps record the current
// instruction pointer in the history first so that Back returns to it.
func (d *Dispatcher) Control(ctx context.Context, cmd service.ControlCommand) error {
	if cmd == service.StepInto || cmd == service.StepOver {
		err := d.exec(ctx, func(m *state.Model) error {
			if ip, ok := m.Session.InstructionPointer(); ok {
				m.History = m.History.Push(ip)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if err := d.client.Control(ctx, cmd); err != nil {
		return d.fail(fmt.Errorf("%s: %w", cmd, err))
	}
	d.update(func(m *state.Model) {
		d.record(m, logrus.DebugLevel, "sent %s", cmd)
	})
	return nil
}

// LoadSettings replaces the local settings with the backend's. Entries the
// backend returns that are unknown or out of range are skipped and logged.
func (d *Dispatcher) LoadSettings(ctx context.Context) error {
	kv, err := d.client.GetSettings(ctx)
	if err != nil {
		return d.fail(fmt.Errorf("load settings: %w", err))
	}
	return d.exec(ctx, func(m *state.Model) error {
		var errs []error
		old := m.Settings
		m.Settings, errs = m.Settings.Merge(kv)
		for _, err := range errs {
			d.record(m, logrus.WarnLevel, "skipping setting: %v", err)
		}
		if old.DisassemblyFlavor != m.Settings.DisassemblyFlavor {
			var effects []state.Effect
			m.Session, effects = m.Session.Reload()
			d.apply(effects)
		}
		return nil
	})
}

// SetSetting validates and applies a setting locally, then saves it. The
// local value stays applied if saving fails; the failure is returned.
func (d *Dispatcher) SetSetting(ctx context.Context, key, value string) error {
	err := d.exec(ctx, func(m *state.Model) error {
		s, err := m.Settings.Set(key, value)
		if err != nil {
			return err
		}
		m.Settings = s
		if key == settings.KeyDisassemblyFlavor {
			var effects []state.Effect
			m.Session, effects = m.Session.Reload()
			d.apply(effects)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := d.client.SaveSetting(ctx, key, value); err != nil {
		return d.fail(fmt.Errorf("save setting %s: %w", key, err))
	}
	return nil
}

// Copy exports the selection (or the first window instruction) and writes
// the text to the clipboard, if any. An empty hex uses the copy hex format
// setting.
func (d *Dispatcher) Copy(ctx context.Context, kind export.Kind, hex settings.HexFormat) (string, error) {
	var text string
	err := d.exec(ctx, func(m *state.Model) error {
		if hex == "" {
			hex = m.Settings.CopyHexFormat
		}
		text = export.Export(*m, export.Request{Targets: m.Selection.Addresses(), Kind: kind, Hex: hex})
		return nil
	})
	if err != nil {
		return "", err
	}
	if d.clip != nil {
		if err := d.clip.WriteText(text); err != nil {
			return text, d.fail(fmt.Errorf("copy: %w", err))
		}
	}
	return text, nil
}

// ListTargets returns the files the backend can load.
func (d *Dispatcher) ListTargets(ctx context.Context) ([]api.TargetFile, error) {
	files, err := d.client.ListTargets(ctx)
	if err != nil {
		return nil, d.fail(fmt.Errorf("list targets: %w", err))
	}
	return files, nil
}

// ParseByte parses a byte written in hex, with or without a 0x prefix or an
// h suffix.
func ParseByte(s string) (byte, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimPrefix(t, "0x")
	if len(t) > 1 && strings.HasSuffix(t, "h") {
		t = t[:len(t)-1]
	}
	if t == "" || len(t) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidByte, s)
	}
	v, err := strconv.ParseUint(t, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidByte, s)
	}
	return byte(v), nil
}

// ParseBytes parses a hex byte string. Bytes may be separated by spaces or
// commas, or written as one run of hex digits ("9090c3").
func ParseBytes(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	if len(fields) == 1 {
		run := strings.TrimPrefix(strings.ToLower(fields[0]), "0x")
		if len(run) > 2 && strings.HasSuffix(run, "h") {
			run = run[:len(run)-1]
		}
		if len(run) > 2 {
			if len(run)%2 != 0 {
				return nil, fmt.Errorf("%w: odd number of digits in %q", ErrInvalidByte, s)
			}
			fields = fields[:0]
			for i := 0; i < len(run); i += 2 {
				fields = append(fields, run[i:i+2])
			}
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no bytes", ErrInvalidByte)
	}
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		b, err := ParseByte(f)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
