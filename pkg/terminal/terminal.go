package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"

	"github.com/cpuview/cpuview/pkg/config"
	"github.com/cpuview/cpuview/pkg/logflags"
	"github.com/cpuview/cpuview/pkg/terminal/starbind"
	"github.com/cpuview/cpuview/service"
	"github.com/cpuview/cpuview/service/dispatcher"
)

const (
	historyFile                 string = ".cpuview_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalReverseEscapeCode   string = "\033[7m"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiBlack     = 30
	ansiRed       = 31
	ansiGreen     = 32
	ansiYellow    = 33
	ansiBlue      = 34
	ansiMagenta   = 35
	ansiCyan      = 36
	ansiWhite     = 37
	ansiBrBlack   = 90
	ansiBrRed     = 91
	ansiBrGreen   = 92
	ansiBrYellow  = 93
	ansiBrBlue    = 94
	ansiBrMagenta = 95
	ansiBrCyan    = 96
	ansiBrWhite   = 97
)

// Term represents the terminal running cpuview.
type Term struct {
	disp     *dispatcher.Dispatcher
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	dumb     bool
	stdout   io.Writer
	log      logflags.Logger
	InitFile string

	rows  *rowCache
	width int

	starlarkEnv *starbind.Env

	ctx context.Context

	// stopOnExit is set by exitCommand to stop the target before quitting.
	stopOnExit bool
}

// New returns a new Term.
func New(disp *dispatcher.Dispatcher, conf *config.Config) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !stdoutIsTerminal()
	var w io.Writer
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	conf.ModifiedColor = validColor(conf.ModifiedColor, ansiRed)
	conf.IPColor = validColor(conf.IPColor, ansiGreen)

	t := &Term{
		disp:   disp,
		conf:   conf,
		prompt: "(cpuview) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: w,
		log:    logflags.TerminalLogger(),
		rows:   newRowCache(),
		width:  terminalWidth(),
		ctx:    context.Background(),
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

func validColor(c, def int) int {
	if (c > ansiWhite && c < ansiBrBlack) || c < ansiBlack || c > ansiBrWhite {
		return def
	}
	return c
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// sigintGuard cancels a running script on SIGINT, or pauses the target.
func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		t.starlarkEnv.Cancel()
		fmt.Fprintf(t.stdout, "received SIGINT, pausing target\n")
		if err := t.disp.Control(context.Background(), service.Pause); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

// Run begins running cpuview in the terminal. It returns when the user
// exits or ctx is done.
func (t *Term) Run(ctx context.Context) (int, error) {
	defer t.Close()
	t.ctx = ctx

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCompleter(t.cmds.completer())

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}
	if f, err := os.Open(fullHistoryFile); err == nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	type prompted struct {
		line string
		err  error
	}
	for {
		in := make(chan prompted, 1)
		go func() {
			l, err := t.promptForInput()
			in <- prompted{l, err}
		}()
		var p prompted
		select {
		case <-ctx.Done():
			return t.handleExit()
		case p = <-in:
		}
		if p.err != nil {
			if p.err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed: %v", p.err)
		}

		if err := t.cmds.Call(p.line, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			t.printError(err)
		}
	}
}

// printError prints a failed command. Input errors are printed as they
// are, anything else is reported as a failure.
func (t *Term) printError(err error) {
	if isInputError(err) {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
}

// Println prints a line to the terminal, coloring prefix with color.
func (t *Term) Println(color int, prefix, str string) {
	fmt.Fprintf(t.stdout, "%s%s\n", t.colorize(color, prefix), str)
}

func (t *Term) colorize(color int, s string) string {
	if t.dumb || s == "" {
		return s
	}
	return fmt.Sprintf(terminalHighlightEscapeCode, color) + s + terminalResetEscapeCode
}

func (t *Term) reverse(s string) string {
	if t.dumb || s == "" {
		return s
	}
	return terminalReverseEscapeCode + s + terminalResetEscapeCode
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func yesno(line *liner.State, question string) (bool, error) {
	for {
		answer, err := line.Prompt(question)
		if err != nil {
			return false, err
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		switch answer {
		case "n", "no":
			return false, nil
		case "y", "yes":
			return true, nil
		}
	}
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.Create(fullHistoryFile); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	if t.stopOnExit {
		if err := t.disp.CloseTarget(context.Background()); err != nil {
			return 1, err
		}
	}
	return 0, nil
}

// completer returns the liner completer: every command alias starting
// with the typed prefix.
func (c *Commands) completer() liner.Completer {
	tr := trie.New()
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			tr.Add(alias, nil)
		}
	}
	return func(line string) []string {
		if strings.ContainsAny(line, " \t") {
			return nil
		}
		c := tr.PrefixSearch(strings.ToLower(line))
		sort.Strings(c)
		return c
	}
}
