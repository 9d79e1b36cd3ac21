package terminal

import (
	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/terminal/starbind"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	cmdfn := func(t *Term, ctx callContext, args string) error {
		return fn(args)
	}

	found := false
	for i := range ctx.term.cmds.cmds {
		cmd := &ctx.term.cmds.cmds[i]
		for _, alias := range cmd.aliases {
			if alias == name {
				cmd.cmdFn = cmdfn
				cmd.helpMsg = helpMsg
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		newcmd := command{
			aliases: []string{name},
			helpMsg: helpMsg,
			cmdFn:   cmdfn,
		}
		ctx.term.cmds.cmds = append(ctx.term.cmds.cmds, newcmd)
	}
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.CallWithContext(cmdstr, ctx.term, callContext{Ctx: ctx.term.ctx, Script: true})
}

// State describes the current snapshot with plain values.
func (ctx starlarkContext) State() map[string]interface{} {
	m := ctx.term.disp.Snapshot()

	window := make([]interface{}, 0, len(m.Session.Window))
	for _, rec := range m.Session.Window {
		window = append(window, map[string]interface{}{
			"address":  rec.Address.String(),
			"opcodes":  rec.Opcodes,
			"text":     ctx.term.rows.format(rec, m.Settings).Text(),
			"comment":  m.EffectiveComment(rec),
			"modified": m.Patches.InstructionModified(rec),
			"selected": m.Selection.Contains(rec.Address),
		})
	}

	regs := make(map[string]string, len(m.Session.Registers))
	for _, r := range m.Session.Registers {
		regs[m.Session.RegisterNameOf(r)] = r.Value
	}

	ip := ""
	if a, ok := m.Session.InstructionPointer(); ok {
		ip = a.String()
	}

	return map[string]interface{}{
		"target":    m.Target.Path,
		"pid":       m.Target.PID,
		"arch":      m.Session.Arch,
		"status":    m.Session.Status.String(),
		"thread":    m.Session.ThreadID,
		"ip":        ip,
		"anchor":    m.Session.Anchor.String(),
		"window":    window,
		"selection": addressStrings(m.Selection.Addresses()),
		"registers": regs,
		"settings":  m.Settings.Map(),
		"patches":   addressStrings(m.Patches.Addresses()),
	}
}

func addressStrings(addrs []address.Address) []string {
	r := make([]string, len(addrs))
	for i := range addrs {
		r[i] = addrs[i].String()
	}
	return r
}
