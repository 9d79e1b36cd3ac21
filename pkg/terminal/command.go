// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/cpuview/cpuview/pkg/address"
	"github.com/cpuview/cpuview/pkg/export"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/state"
	"github.com/cpuview/cpuview/service"
	"github.com/cpuview/cpuview/service/dispatcher"
)

// defaultLogLines is the number of system log entries printed by log.
const defaultLogLines = 20

type callContext struct {
	Ctx context.Context
	// Script is set for commands read from an init file or run by a
	// Starlark script.
	Script bool
}

type cmdfunc func(t *Term, ctx callContext, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the cpuview terminal.
type Commands struct {
	cmds []command
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"goto", "g"}, group: viewCmds, cmdFn: gotoCmd, helpMsg: `Moves the listing to an address.

	goto <address>

Addresses are hexadecimal with or without the 0x prefix; a run of decimal digits is read as a decimal number. The previous position is recorded in the history.`},
		{aliases: []string{"back", "b"}, group: viewCmds, cmdFn: back, helpMsg: "Returns to the previous position in the history."},
		{aliases: []string{"forward", "f"}, group: viewCmds, cmdFn: forward, helpMsg: "Goes forward in the history."},
		{aliases: []string{"ip"}, group: viewCmds, cmdFn: ipCmd, helpMsg: "Moves the listing to the instruction pointer and selects it."},
		{aliases: []string{"up", "u"}, group: viewCmds, cmdFn: up, helpMsg: "Scrolls the listing up."},
		{aliases: []string{"down", "d"}, group: viewCmds, cmdFn: down, helpMsg: "Scrolls the listing down."},
		{aliases: []string{"list", "l", "ls"}, group: viewCmds, cmdFn: listCmd, helpMsg: `Prints the instruction window.

	list [<address>]

With an address the listing moves there first.`},
		{aliases: []string{"refresh"}, group: viewCmds, cmdFn: refresh, helpMsg: "Requests the instruction window again."},
		{aliases: []string{"regs"}, group: viewCmds, cmdFn: regs, helpMsg: "Prints the registers of the current thread."},

		{aliases: []string{"select", "s"}, group: selectCmds, cmdFn: selectCmd, helpMsg: `Selects one instruction.

	select <address>`},
		{aliases: []string{"toggle", "t"}, group: selectCmds, cmdFn: toggle, helpMsg: `Adds an instruction to the selection, or removes it.

	toggle <address>`},
		{aliases: []string{"range"}, group: selectCmds, cmdFn: rangeCmd, helpMsg: `Selects every instruction between two window addresses.

	range <from> <to>`},
		{aliases: []string{"extend"}, group: selectCmds, cmdFn: extend, helpMsg: `Extends the selection from the last selected instruction.

	extend <address>`},
		{aliases: []string{"move", "mv"}, group: selectCmds, cmdFn: move, helpMsg: `Moves the selection by a number of instructions.

	move [-]<count>`},
		{aliases: []string{"clear"}, group: selectCmds, cmdFn: clear, helpMsg: "Clears the selection."},

		{aliases: []string{"comment", "c"}, group: patchCmds, cmdFn: comment, helpMsg: `Sets the comment of the selected instructions.

	comment [text]

Without text the comments are deleted.`},
		{aliases: []string{"nop"}, group: patchCmds, cmdFn: nop, helpMsg: "Overwrites the selected instructions with NOPs."},
		{aliases: []string{"fill"}, group: patchCmds, cmdFn: fill, helpMsg: `Overwrites every byte of the selected instructions.

	fill <byte>

The byte is hexadecimal: 90, 0x90 and 90h are the same.`},
		{aliases: []string{"edit"}, group: patchCmds, cmdFn: edit, helpMsg: `Writes bytes at the first selected instruction.

	edit <bytes>

Bytes are hexadecimal, separated by spaces or commas, or written as one run: edit 48 31 c0, edit 4831c0.`},
		{aliases: []string{"revert"}, group: patchCmds, cmdFn: revert, helpMsg: "Restores the original bytes of the selected instructions."},
		{aliases: []string{"copy", "cp"}, group: patchCmds, cmdFn: copyCmd, helpMsg: `Copies the selected instructions.

	copy [line|address|asm|offset|hex] [raw|space|prefix|python]

The default is line. The hex encoding defaults to the copyHexFormat setting. Without a selection the first instruction of the window is copied.`},

		{aliases: []string{"run", "r", "continue"}, group: runCmds, cmdFn: runCmd, helpMsg: "Resumes the target."},
		{aliases: []string{"pause"}, group: runCmds, cmdFn: pause, helpMsg: "Pauses the target."},
		{aliases: []string{"stepi", "si"}, group: runCmds, cmdFn: stepInto, helpMsg: `Executes one instruction, entering calls.

	stepi [count]`},
		{aliases: []string{"nexti", "ni"}, group: runCmds, cmdFn: stepOver, helpMsg: `Executes one instruction, stepping over calls.

	nexti [count]`},

		{aliases: []string{"load"}, group: sessionCmds, cmdFn: load, helpMsg: "Restarts the last target."},
		{aliases: []string{"open"}, group: sessionCmds, cmdFn: open, helpMsg: `Loads a target.

	open <path>`},
		{aliases: []string{"close"}, group: sessionCmds, cmdFn: closeCmd, helpMsg: "Stops the target."},
		{aliases: []string{"resetdb"}, group: sessionCmds, cmdFn: resetdb, helpMsg: `Deletes the saved comments and patches of the target.

	resetdb [-all]

With -all the database of every target is deleted.`},
		{aliases: []string{"targets"}, group: sessionCmds, cmdFn: targets, helpMsg: "Lists the files the backend can load."},
		{aliases: []string{"log"}, group: sessionCmds, cmdFn: logCmd, helpMsg: `Prints the system log.

	log [count|-all]`},

		{aliases: []string{"set"}, cmdFn: setCmd, helpMsg: `Changes a display setting.

	set <key> <value>

Type "settings" for the list of keys and values.`},
		{aliases: []string{"settings"}, cmdFn: settingsCmd, helpMsg: `Prints the display settings.

	settings [-load]

With -load the settings are read from the backend again.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of cpuview commands.

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script. Functions called command_<name> become commands.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exits cpuview.

	exit [-s]

With -s the target is stopped first.`},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// CallWithContext takes a command and a context that command should be executed in.
func (c *Commands) CallWithContext(cmdstr string, t *Term, ctx callContext) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	if t.log != nil {
		t.log.Debugf("command %q", cmdstr)
	}
	return c.Find(cmdname)(t, ctx, args)
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	return c.CallWithContext(cmdstr, t, callContext{Ctx: t.ctx})
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var (
	noCmdError       = errors.New("command not available")
	errNotEnoughArgs = errors.New("not enough arguments")
	errTooManyArgs   = errors.New("too many arguments")
)

// isInputError reports whether err was caused by what the user typed.
func isInputError(err error) bool {
	for _, target := range []error{noCmdError, errNotEnoughArgs, errTooManyArgs, address.ErrInvalid, settings.ErrInvalid, dispatcher.ErrInvalidByte, state.ErrEmptySelection, state.ErrEmptyPatch, dispatcher.ErrNotInWindow, dispatcher.ErrHistoryEmpty, dispatcher.ErrNothingToRevert} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func noCmdAvailable(t *Term, ctx callContext, args string) error {
	return noCmdError
}

func nullCommand(t *Term, ctx callContext, args string) error {
	return nil
}

func (c *Commands) help(t *Term, ctx callContext, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits args like a shell would, without expansions.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

func split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

// oneArg returns the only argument of a command.
func oneArg(args string) (string, error) {
	v, err := splitArgs(args)
	if err != nil {
		return "", err
	}
	switch len(v) {
	case 0:
		return "", errNotEnoughArgs
	case 1:
		return v[0], nil
	default:
		return "", errTooManyArgs
	}
}

// parseOptionalCount parses the repeat count of the step commands.
func parseOptionalCount(arg string) (int, error) {
	if arg == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("count must be a positive number: %q", arg)
	}
	return n, nil
}

func gotoCmd(t *Term, ctx callContext, args string) error {
	a, err := oneArg(args)
	if err != nil {
		return err
	}
	if err := t.disp.Goto(ctx.Ctx, a); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func back(t *Term, ctx callContext, args string) error {
	if err := t.disp.Back(ctx.Ctx); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func forward(t *Term, ctx callContext, args string) error {
	if err := t.disp.Forward(ctx.Ctx); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func ipCmd(t *Term, ctx callContext, args string) error {
	if err := t.disp.JumpToIP(ctx.Ctx); err != nil {
		return err
	}
	return t.printcontext(ctx)
}

func up(t *Term, ctx callContext, args string) error {
	if err := t.disp.ScrollUp(ctx.Ctx); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func down(t *Term, ctx callContext, args string) error {
	if err := t.disp.ScrollDown(ctx.Ctx); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func listCmd(t *Term, ctx callContext, args string) error {
	if args != "" {
		return gotoCmd(t, ctx, args)
	}
	return t.printListing(ctx)
}

func refresh(t *Term, ctx callContext, args string) error {
	if err := t.disp.Refresh(ctx.Ctx); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func regs(t *Term, ctx callContext, args string) error {
	m := t.disp.Snapshot()
	t.printStatus(t.stdout, m)
	if len(m.Session.Registers) == 0 {
		fmt.Fprintln(t.stdout, "no registers")
		return nil
	}
	w := tabwriter.NewWriter(t.stdout, 0, 8, 1, ' ', 0)
	for _, r := range m.Session.Registers {
		fmt.Fprintf(w, "%s\t= %s\n", m.Session.RegisterNameOf(r), r.Value)
	}
	return w.Flush()
}

func selectCmd(t *Term, ctx callContext, args string) error {
	a, err := oneArg(args)
	if err != nil {
		return err
	}
	if err := t.disp.Select(ctx.Ctx, a); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func toggle(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) == 0 {
		return errNotEnoughArgs
	}
	for _, a := range v {
		if err := t.disp.Toggle(ctx.Ctx, a); err != nil {
			return err
		}
	}
	return t.printListing(ctx)
}

func rangeCmd(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	switch {
	case len(v) < 2:
		return errNotEnoughArgs
	case len(v) > 2:
		return errTooManyArgs
	}
	if err := t.disp.SelectRange(ctx.Ctx, v[0], v[1]); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func extend(t *Term, ctx callContext, args string) error {
	a, err := oneArg(args)
	if err != nil {
		return err
	}
	if err := t.disp.ExtendTo(ctx.Ctx, a); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func move(t *Term, ctx callContext, args string) error {
	delta := 1
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil {
			return fmt.Errorf("count must be a number: %q", args)
		}
		delta = n
	}
	if err := t.disp.MoveSelection(ctx.Ctx, delta); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func clear(t *Term, ctx callContext, args string) error {
	return t.disp.ClearSelection(ctx.Ctx)
}

func comment(t *Term, ctx callContext, args string) error {
	if err := t.disp.Comment(ctx.Ctx, args); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func nop(t *Term, ctx callContext, args string) error {
	return patch(t, ctx, state.NOP())
}

func fill(t *Term, ctx callContext, args string) error {
	a, err := oneArg(args)
	if err != nil {
		return err
	}
	b, err := dispatcher.ParseByte(a)
	if err != nil {
		return err
	}
	return patch(t, ctx, state.Byte(b))
}

func edit(t *Term, ctx callContext, args string) error {
	if args == "" {
		return errNotEnoughArgs
	}
	bs, err := dispatcher.ParseBytes(args)
	if err != nil {
		return err
	}
	return patch(t, ctx, state.Bytes(bs))
}

func patch(t *Term, ctx callContext, f state.Fill) error {
	if err := t.disp.Patch(ctx.Ctx, f); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func revert(t *Term, ctx callContext, args string) error {
	if err := t.disp.Revert(ctx.Ctx); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func copyCmd(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) > 2 {
		return errTooManyArgs
	}
	kind := export.KindLine
	if len(v) > 0 {
		if kind, err = export.ParseKind(v[0]); err != nil {
			return err
		}
	}
	var hex settings.HexFormat
	if len(v) > 1 {
		s, err := settings.Default().Set(settings.KeyCopyHexFormat, v[1])
		if err != nil {
			return err
		}
		hex = s.CopyHexFormat
	}
	text, err := t.disp.Copy(ctx.Ctx, kind, hex)
	if text != "" {
		fmt.Fprintln(t.stdout, text)
	}
	return err
}

func control(t *Term, ctx callContext, cmd service.ControlCommand, args string) error {
	n, err := parseOptionalCount(args)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := t.disp.Control(ctx.Ctx, cmd); err != nil {
			return err
		}
		if i < n-1 {
			t.settle(ctx.Ctx)
		}
	}
	return t.printcontext(ctx)
}

func runCmd(t *Term, ctx callContext, args string) error {
	return control(t, ctx, service.Run, "")
}

func pause(t *Term, ctx callContext, args string) error {
	return control(t, ctx, service.Pause, "")
}

func stepInto(t *Term, ctx callContext, args string) error {
	return control(t, ctx, service.StepInto, args)
}

func stepOver(t *Term, ctx callContext, args string) error {
	return control(t, ctx, service.StepOver, args)
}

func load(t *Term, ctx callContext, args string) error {
	if err := t.disp.LoadSession(ctx.Ctx); err != nil {
		return err
	}
	return t.printcontext(ctx)
}

func open(t *Term, ctx callContext, args string) error {
	path, err := oneArg(args)
	if err != nil {
		return err
	}
	if err := t.disp.OpenTarget(ctx.Ctx, path); err != nil {
		return err
	}
	return t.printcontext(ctx)
}

func closeCmd(t *Term, ctx callContext, args string) error {
	return t.disp.CloseTarget(ctx.Ctx)
}

func resetdb(t *Term, ctx callContext, args string) error {
	all := false
	switch args {
	case "":
	case "-all":
		all = true
	default:
		return fmt.Errorf("unknown argument %q", args)
	}
	if all && !ctx.Script {
		ok, err := yesno(t.line, "Delete the saved comments and patches of every target? [y/n] ")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if err := t.disp.ResetDatabase(ctx.Ctx, all); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func targets(t *Term, ctx callContext, args string) error {
	files, err := t.disp.ListTargets(ctx.Ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(t.stdout, "no targets")
		return nil
	}
	w := tabwriter.NewWriter(t.stdout, 0, 8, 2, ' ', 0)
	for _, f := range files {
		exe := ""
		if f.Executable {
			exe = "executable"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", f.Name, f.Size, exe)
	}
	return w.Flush()
}

func logCmd(t *Term, ctx callContext, args string) error {
	n := defaultLogLines
	switch args {
	case "":
	case "-all":
		n = 0
	default:
		v, err := strconv.Atoi(args)
		if err != nil || v <= 0 {
			return fmt.Errorf("count must be a positive number: %q", args)
		}
		n = v
	}
	pw := &pagingWriter{w: t.stdout}
	pw.PageMaybe()
	defer pw.Reset()
	for _, e := range t.disp.Snapshot().Log.Tail(n) {
		fmt.Fprintf(pw, "%s %-7s %s\n", e.Time.Format("15:04:05"), e.Level, e.Message)
	}
	return nil
}

func setCmd(t *Term, ctx callContext, args string) error {
	v := split2PartsBySpace(args)
	if len(v) < 2 || v[0] == "" || v[1] == "" {
		return errNotEnoughArgs
	}
	if err := t.disp.SetSetting(ctx.Ctx, v[0], v[1]); err != nil {
		return err
	}
	return t.printListing(ctx)
}

func settingsCmd(t *Term, ctx callContext, args string) error {
	switch args {
	case "":
	case "-load":
		if err := t.disp.LoadSettings(ctx.Ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown argument %q", args)
	}
	s := t.disp.Snapshot().Settings
	w := tabwriter.NewWriter(t.stdout, 0, 8, 2, ' ', 0)
	for _, k := range settings.Keys() {
		v, _ := s.Get(k)
		allowed := settings.Allowed(k)
		if len(allowed) > 0 {
			fmt.Fprintf(w, "%s\t%s\t(%s)\n", k, v, strings.Join(allowed, ", "))
		} else {
			fmt.Fprintf(w, "%s\t%s\t\n", k, v)
		}
	}
	return w.Flush()
}

func (c *Commands) sourceCommand(t *Term, ctx callContext, args string) error {
	path, err := oneArg(args)
	if err != nil {
		return err
	}

	if filepath.Ext(path) == ".star" {
		_, err := t.starlarkEnv.Execute(path, nil, "main", nil)
		return err
	}

	return c.executeFile(t, path)
}

// ExitRequestError is returned when the user
// exits cpuview.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, ctx callContext, args string) error {
	switch args {
	case "":
	case "-s":
		t.stopOnExit = true
	default:
		return fmt.Errorf("unknown argument %q", args)
	}
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	ctx := callContext{Ctx: t.ctx, Script: true}
	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.CallWithContext(line, t, ctx); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
