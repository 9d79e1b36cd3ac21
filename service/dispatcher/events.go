package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/state"
	"github.com/cpuview/cpuview/service/api"
)

// HandlePush is a push.Handler feeding events to the loop.
func (d *Dispatcher) HandlePush(ev api.Event) {
	d.HandleEvent(context.Background(), ev)
}

// HandleEvent applies one push event. A malformed payload is logged and
// dropped, leaving the state unchanged, and returned as a *MalformedError.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev api.Event) error {
	apply, err := decodeEvent(ev)
	if err != nil {
		merr := &MalformedError{Kind: ev.Type, Err: err}
		d.post(func(m *state.Model) {
			d.record(m, logrus.WarnLevel, "dropping push event: %v", merr)
		})
		return merr
	}
	return d.exec(ctx, func(m *state.Model) error {
		effects, err := apply(d, m)
		if err != nil {
			merr := &MalformedError{Kind: ev.Type, Err: err}
			d.record(m, logrus.WarnLevel, "dropping push event: %v", merr)
			return merr
		}
		d.apply(effects)
		return nil
	})
}

type eventFunc func(d *Dispatcher, m *state.Model) ([]state.Effect, error)

// decodeEvent decodes the payload outside the loop and returns the
// transition to run on it.
func decodeEvent(ev api.Event) (eventFunc, error) {
	switch ev.Type {
	case api.EventStatus:
		var s string
		if err := json.Unmarshal(ev.Payload, &s); err != nil {
			return nil, err
		}
		st, err := state.ParseStatus(s)
		if err != nil {
			return nil, err
		}
		return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
			var effects []state.Effect
			m.Session, effects = m.Session.SetStatus(st)
			d.record(m, logrus.InfoLevel, "target %s", st)
			return effects, nil
		}, nil

	case api.EventThreadUpdate:
		id, err := scalarString(ev.Payload)
		if err != nil {
			return nil, err
		}
		return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
			m.Session = m.Session.SetThread(id)
			return nil, nil
		}, nil

	case api.EventRegisters:
		var regs []api.Register
		if err := json.Unmarshal(ev.Payload, &regs); err != nil {
			return nil, err
		}
		conv := make([]state.Register, 0, len(regs))
		for _, r := range regs {
			if r.Number == "" {
				return nil, fmt.Errorf("register without number")
			}
			conv = append(conv, state.Register{ID: r.Number, Name: r.Name, Value: r.Value})
		}
		return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
			s, effects, err := m.Session.SetRegisters(conv)
			if err != nil {
				return nil, err
			}
			m.Session = s
			return effects, nil
		}, nil

	case api.EventRegisterNames:
		var names []string
		if err := json.Unmarshal(ev.Payload, &names); err != nil {
			return nil, err
		}
		return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
			var effects []state.Effect
			m.Session, effects = m.Session.SetRegisterNames(names)
			return effects, nil
		}, nil

	case api.EventDisassembly:
		w, err := decodeWindow(ev.Payload)
		if err != nil {
			return nil, err
		}
		recs, err := records(w.Instructions)
		if err != nil {
			return nil, err
		}
		return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
			var ok bool
			m.Session, ok = m.Session.ReceiveWindow(recs, w.Seq)
			if !ok {
				d.record(m, logrus.DebugLevel, "discarding stale window (seq %d, last %d)", w.Seq, m.Session.LastSeq())
			}
			return nil, nil
		}, nil

	case api.EventProgress:
		var p api.Progress
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, err
		}
		return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
			m.Session = m.Session.SetProgress(state.Progress{Message: p.Message, Percent: p.Percent, Show: p.Show})
			return nil, nil
		}, nil

	case api.EventSystemLog, api.EventTargetLog, api.EventError:
		var s string
		if err := json.Unmarshal(ev.Payload, &s); err != nil {
			return nil, err
		}
		level := logrus.InfoLevel
		switch ev.Type {
		case api.EventError:
			level = logrus.ErrorLevel
		case api.EventTargetLog:
			s = "[target] " + s
		}
		return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
			d.record(m, level, "%s", strings.TrimRight(s, "\n"))
			return nil, nil
		}, nil
	}

	return func(d *Dispatcher, m *state.Model) ([]state.Effect, error) {
		d.record(m, logrus.DebugLevel, "ignoring push event %q", ev.Type)
		return nil, nil
	}, nil
}

// decodeWindow accepts both a bare instruction list and a Window object.
func decodeWindow(raw json.RawMessage) (api.Window, error) {
	var list []api.Instruction
	if err := json.Unmarshal(raw, &list); err == nil {
		return api.Window{Instructions: list}, nil
	}
	var w api.Window
	if err := json.Unmarshal(raw, &w); err != nil {
		return api.Window{}, err
	}
	if w.Instructions == nil {
		return api.Window{}, fmt.Errorf("missing instructions")
	}
	return w, nil
}

// records converts wire instructions. A single bad address rejects the
// whole window.
func records(insns []api.Instruction) ([]state.Record, error) {
	recs := make([]state.Record, 0, len(insns))
	for _, in := range insns {
		a, err := address.Normalize(in.Address)
		if err != nil {
			return nil, err
		}
		recs = append(recs, state.Record{Address: a, RawText: in.Inst, Opcodes: in.Opcodes})
	}
	return recs, nil
}

// scalarString decodes a JSON string or number.
func scalarString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected a string or a number: %s", raw)
	}
	if _, err := strconv.ParseInt(string(n), 10, 64); err != nil {
		return "", err
	}
	return string(n), nil
}
