// Package starbind runs Starlark scripts against a terminal session.
// Scripts drive the session through the terminal's own commands and read
// a description of the session state.
package starbind

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
)

const (
	commandBuiltinName   = "cpuview_command"
	stateBuiltinName     = "cpuview_state"
	readFileBuiltinName  = "read_file"
	writeFileBuiltinName = "write_file"
	helpBuiltinName      = "help"
	commandPrefix        = "command_"
	contextName          = "cpuview_context"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context is the context in which starlark scripts are evaluated.
type Context interface {
	// CallCommand runs a terminal command line.
	CallCommand(cmdstr string) error
	// RegisterCommand adds (or replaces) a terminal command.
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	// State describes the session: target, status, registers, window,
	// selection and settings.
	State() map[string]interface{}
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	doc       map[string]string
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx Context
	out io.Writer
}

type builtinFn func(env *Env, thread *starlark.Thread, args starlark.Tuple) (starlark.Value, error)

// builtins are the functions predeclared in every script, with their
// argument synopsis and help text.
var builtins = []struct {
	name, synopsis, descr string
	fn                    builtinFn
}{
	{commandBuiltinName, "(Command)", "runs a terminal command, for example cpuview_command(\"goto\", \"0x401000\").", (*Env).commandBuiltin},
	{stateBuiltinName, "()", "returns the session state as a dict.", (*Env).stateBuiltin},
	{readFileBuiltinName, "(Path)", "reads a file.", (*Env).readFileBuiltin},
	{writeFileBuiltinName, "(Path, Text)", "writes text to the specified file.", (*Env).writeFileBuiltin},
	{helpBuiltinName, "(Object)", "prints help for Object.", (*Env).helpBuiltin},
}

// New creates a new starlark binding environment.
func New(ctx Context, out io.Writer) *Env {
	env := &Env{ctx: ctx, out: out, env: starlark.StringDict{}, doc: map[string]string{}}

	starlark.Universe["time"] = startime.Module

	for _, b := range builtins {
		fn := b.fn
		env.env[b.name] = starlark.NewBuiltin(b.name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			if err := isCancelled(thread); err != nil {
				return starlark.None, err
			}
			v, err := fn(env, thread, args)
			if err != nil {
				return nil, decorateError(thread, err)
			}
			if v == nil {
				v = starlark.None
			}
			return v, nil
		})
		env.doc[b.name] = b.name + b.synopsis + "\n\n" + b.name + " " + b.descr
	}
	return env
}

func checkArgs(name string, args starlark.Tuple, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: wrong number of arguments, expected %d got %d", name, n, len(args))
	}
	return nil
}

func (env *Env) commandBuiltin(_ *starlark.Thread, args starlark.Tuple) (starlark.Value, error) {
	argstrs, err := stringArgs(commandBuiltinName, args)
	if err != nil {
		return nil, err
	}
	return nil, env.ctx.CallCommand(strings.Join(argstrs, " "))
}

func (env *Env) stateBuiltin(_ *starlark.Thread, args starlark.Tuple) (starlark.Value, error) {
	if err := checkArgs(stateBuiltinName, args, 0); err != nil {
		return nil, err
	}
	return toStarlarkValue(env.ctx.State()), nil
}

func (env *Env) readFileBuiltin(_ *starlark.Thread, args starlark.Tuple) (starlark.Value, error) {
	if err := checkArgs(readFileBuiltinName, args, 1); err != nil {
		return nil, err
	}
	path, err := stringArgs(readFileBuiltinName, args)
	if err != nil {
		return nil, err
	}
	buf, err := ioutil.ReadFile(path[0])
	if err != nil {
		return nil, err
	}
	return starlark.String(buf), nil
}

func (env *Env) writeFileBuiltin(_ *starlark.Thread, args starlark.Tuple) (starlark.Value, error) {
	if err := checkArgs(writeFileBuiltinName, args, 2); err != nil {
		return nil, err
	}
	path, err := stringArgs(writeFileBuiltinName, args[:1])
	if err != nil {
		return nil, err
	}
	text, ok := starlark.AsString(args[1])
	if !ok {
		text = args[1].String()
	}
	return nil, ioutil.WriteFile(path[0], []byte(text), 0640)
}

func (env *Env) helpBuiltin(_ *starlark.Thread, args starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		fmt.Fprintln(env.out, "Available builtins:")
		names := make([]string, 0, len(env.doc))
		for name := range env.doc {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(env.out, "\t%s\n", name)
		}
		return nil, nil
	}
	if err := checkArgs(helpBuiltinName, args, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case *starlark.Builtin:
		if d := env.doc[x.Name()]; d != "" {
			fmt.Fprintln(env.out, d)
		} else {
			fmt.Fprintf(env.out, "no help for builtin %s\n", x.Name())
		}
	case *starlark.Function:
		fmt.Fprintf(env.out, "user defined function %s\n", x.Name())
		if d := x.Doc(); d != "" {
			fmt.Fprintln(env.out, d)
		}
	default:
		fmt.Fprintf(env.out, "no help for object of type %T\n", args[0])
	}
	return nil, nil
}

// Redirect redirects starlark output to out.
func (env *Env) Redirect(out io.Writer) {
	env.out = out
	env.contextMu.Lock()
	if env.thread != nil {
		env.thread.Print = env.printFunc()
	}
	env.contextMu.Unlock()
}

func (env *Env) printFunc() func(_ *starlark.Thread, msg string) {
	return func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) }
}

// Execute executes a script. Path is the name of the file to execute and
// source is the source code to execute.
// Source can be either a []byte, a string or a io.Reader. If source is nil
// Execute will execute the file specified by 'path'.
// After the file is executed if a function named mainFnName exists it will be called, passing args to it.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []interface{}) (_ starlark.Value, err error) {
	defer env.recoverPanic(&err)

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}

	if err := env.exportGlobals(globals); err != nil {
		return starlark.None, err
	}

	return env.callMain(thread, globals, mainFnName, args)
}

// recoverPanic turns a panic in a builtin into an error and prints the
// stack to the script output.
func (env *Env) recoverPanic(err *error) {
	p := recover()
	if p == nil {
		return
	}
	*err = fmt.Errorf("panic executing starlark script: %v", p)
	fmt.Fprintf(env.out, "%v\n%s", *err, debug.Stack())
}

// exportGlobals saves globals with a name starting with a capital letter
// into the environment and creates commands from globals with a name
// starting with "command_"
func (env *Env) exportGlobals(globals starlark.StringDict) error {
	for name, val := range globals {
		switch {
		case strings.HasPrefix(name, commandPrefix):
			if err := env.createCommand(name, val); err != nil {
				return err
			}
		case name[0] >= 'A' && name[0] <= 'Z':
			env.env[name] = val
		}
	}
	return nil
}

// Cancel cancels the execution of a currently running script or function.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: env.printFunc(),
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(contextName, ctx)
	return thread
}

// createCommand registers val as a terminal command. A function with a
// single parameter called args receives the argument string as is;
// otherwise the arguments are evaluated as a starlark tuple.
func (env *Env) createCommand(name string, val starlark.Value) error {
	fnval, ok := val.(*starlark.Function)
	if !ok {
		return nil
	}

	name = name[len(commandPrefix):]

	helpMsg := fnval.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}

	if fnval.NumParams() == 1 {
		if p0, _ := fnval.Param(0); p0 == "args" {
			env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
				_, err := starlark.Call(env.newThread(), fnval, starlark.Tuple{starlark.String(args)}, nil)
				return err
			})
			return nil
		}
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		thread := env.newThread()
		argval, err := starlark.Eval(thread, "<input>", "("+args+")", env.env)
		if err != nil {
			return err
		}
		argtuple, ok := argval.(starlark.Tuple)
		if !ok {
			argtuple = starlark.Tuple{argval}
		}
		_, err = starlark.Call(thread, fnval, argtuple, nil)
		return err
	})
	return nil
}

// callMain calls the main function in globals, if one was defined.
func (env *Env) callMain(thread *starlark.Thread, globals starlark.StringDict, mainFnName string, args []interface{}) (starlark.Value, error) {
	if mainFnName == "" {
		return starlark.None, nil
	}
	mainval := globals[mainFnName]
	if mainval == nil {
		return starlark.None, nil
	}
	mainfn, ok := mainval.(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", mainFnName)
	}
	if mainfn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("wrong number of arguments for %s", mainFnName)
	}
	argtuple := make(starlark.Tuple, len(args))
	for i := range args {
		argtuple[i] = toStarlarkValue(args[i])
	}
	return starlark.Call(thread, mainfn, argtuple, nil)
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(contextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %v", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %v", pos.Filename(), pos.Line, err)
}
