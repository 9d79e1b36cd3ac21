package cmds

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cpuview/cpuview/pkg/asmfmt"
	"github.com/cpuview/cpuview/pkg/config"
	"github.com/cpuview/cpuview/pkg/export"
	"github.com/cpuview/cpuview/pkg/logflags"
	"github.com/cpuview/cpuview/pkg/terminal"
	"github.com/cpuview/cpuview/pkg/version"
	"github.com/cpuview/cpuview/service/api"
	"github.com/cpuview/cpuview/service/dispatcher"
	"github.com/cpuview/cpuview/service/offline"
	"github.com/cpuview/cpuview/service/push"
	"github.com/cpuview/cpuview/service/rest"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// pushURL overrides the push channel URL derived from the backend.
	pushURL string

	// addr is the offline backend listen address.
	addr string
	// base is the load address of flat images.
	base string
	// mode is the decoding mode of flat images.
	mode int
	// dbDir holds the offline backend's comments, patches and settings.
	dbDir string
	// pushDisassembly makes the offline backend deliver windows on the push channel.
	pushDisassembly bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const cpuviewCommandLongDesc = `cpuview is an instruction level front-end for a remote debugger backend.

It shows the disassembly around the instruction pointer of the target, follows
the target as it runs and steps, and lets you select, comment and patch
instructions. Comments and patches are kept by the backend.

Without a subcommand cpuview connects to the backend named in the
configuration file, or to --backend.`

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	var backend string

	// Main cpuview root command.
	rootCommand = &cobra.Command{
		Use:   "cpuview",
		Short: "cpuview is an instruction level debugger front-end.",
		Long:  cpuviewCommandLongDesc,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if backend != "" {
				conf.Backend = backend
			}
			os.Exit(connect(conf.BackendURL(), conf))
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'cpuview help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'cpuview help log').")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.PersistentFlags().StringVar(&pushURL, "push-url", "", "Push channel URL, derived from the backend URL by default.")
	rootCommand.Flags().StringVar(&backend, "backend", "", "Backend REST root, for example "+config.DefaultBackend+".")

	// 'connect' subcommand.
	connectCommand := &cobra.Command{
		Use:   "connect url",
		Short: "Connect to a backend.",
		Long:  "Connect to a running backend. The URL is the REST root of the backend, for example " + config.DefaultBackend + ".",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide an address as the first argument")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(connect(args[0], conf))
		},
	}
	rootCommand.AddCommand(connectCommand)

	// 'exec' subcommand.
	execCommand := &cobra.Command{
		Use:   "exec <path/to/image>",
		Short: "Load an image in the offline backend and begin a session.",
		Long: `Starts the offline backend on a local port, loads the image and connects to it.

The offline backend simulates the target: the image (an ELF executable or a flat
binary) is decoded with the Go x86 disassembler and stepped one instruction at a
time. Comments, patches and settings are kept in --db-dir.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to an image")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(args[0], false))
		},
	}
	rootCommand.AddCommand(execCommand)

	// 'serve' subcommand.
	serveCommand := &cobra.Command{
		Use:   "serve <path/to/image>",
		Short: "Run the offline backend only.",
		Long: `Runs the offline backend without a terminal. Connect to it with

	cpuview connect http://<listen address>/api

The backend stops on SIGINT.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to an image")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(args[0], true))
		},
	}
	rootCommand.AddCommand(serveCommand)

	for _, c := range []*cobra.Command{execCommand, serveCommand} {
		addBackendFlags(c.Flags())
	}

	// 'format' subcommand.
	formatCommand := &cobra.Command{
		Use:   "format <instruction>...",
		Short: "Formats instructions with the configured display settings.",
		Long: `Formats each argument as the listing would, for example

	cpuview format 'mov %rsp,%rbp' 'call 0x401000 <main>'`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, errs := conf.DisplaySettings()
			for _, err := range errs {
				fmt.Fprintf(os.Stderr, "config: %v\n", err)
			}
			for _, raw := range args {
				fmt.Println(asmfmt.Format(raw, s).Text())
			}
		},
	}
	rootCommand.AddCommand(formatCommand)

	// 'version' subcommand.
	var versionVerbose bool
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cpuview\n%s\n", version.CPUViewVersion)
			if versionVerbose {
				fmt.Printf("\n%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:

	dispatcher	Log state changes and dropped events (default)
	rest		Log every request and response
	push		Log the push channel connection and events
	offline		Log the offline backend
	terminal	Log terminal commands

The --log-dest flag can be used to specify a file where the logs should be
written. If the argument is a number it will be interpreted as a file
descriptor, otherwise as a file path.`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func setupLogging() bool {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return false
	}
	return true
}

// connect runs a terminal against the backend at backendURL. The
// dispatcher, the push channel and the terminal share one context; the
// session ends when the terminal exits.
func connect(backendURL string, conf *config.Config) int {
	if !setupLogging() {
		return 1
	}
	defer logflags.Close()

	client := rest.NewClient(backendURL)

	wsURL := pushURL
	if wsURL == "" {
		wsURL = conf.PushURL
	}
	if wsURL == "" {
		var err error
		wsURL, err = push.URLFromBase(client.BaseURL())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
	}

	s, errs := conf.DisplaySettings()
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
	}
	var clip export.Clipboard
	if conf.UseSystemClipboard() {
		clip = export.NewSystem()
	}
	disp := dispatcher.New(client, dispatcher.Config{
		Count:     conf.Count(),
		Settings:  s,
		Clipboard: clip,
	})

	pc := push.NewClient(wsURL)
	// the first connection loads the session, later ones only resync
	loaded := make(chan struct{})
	pc.OnConnect = func() {
		select {
		case <-loaded:
			disp.Refresh(context.Background())
		default:
			close(loaded)
		}
	}

	term := terminal.New(disp, conf)
	term.InitFile = initFile

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return disp.Run(ctx)
	})
	g.Go(func() error {
		return pc.Run(ctx, func(ev api.Event) { disp.HandlePush(ev) })
	})
	g.Go(func() error {
		select {
		case <-loaded:
		case <-ctx.Done():
			return nil
		}
		if err := disp.LoadSettings(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "could not load settings: %v\n", err)
		}
		if err := disp.LoadSession(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "could not load session: %v\n", err)
		}
		return nil
	})

	var status int
	g.Go(func() error {
		defer cancel()
		var err error
		status, err = term.Run(ctx)
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println(err)
		if status == 0 {
			status = 1
		}
	}
	return status
}

// execute starts the offline backend for image. Unless headless it also
// runs a terminal connected to it and stops the backend when the terminal
// exits.
func execute(image string, headless bool) int {
	if !setupLogging() {
		return 1
	}
	defer logflags.Close()

	if headless && initFile != "" {
		fmt.Fprint(os.Stderr, "Warning: init file ignored with serve\n")
	}

	cfg := &offline.Config{
		Target:          image,
		Mode:            mode,
		DBDir:           dbDir,
		PushDisassembly: pushDisassembly,
	}
	if base != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(base), "0x"), 16, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --base %q\n", base)
			return 1
		}
		cfg.Base = v
	}
	if cfg.DBDir == "" {
		dir, err := config.GetConfigFilePath("db")
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		cfg.DBDir = dir
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Printf("couldn't start listener: %s\n", err)
		return 1
	}
	cfg.Listener = listener

	server, err := offline.NewServer(cfg)
	if err != nil {
		listener.Close()
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Run()
	}()
	defer server.Stop()

	backendURL := "http://" + listener.Addr().String() + offline.APIRoot
	if !headless {
		return connect(backendURL, conf)
	}

	fmt.Printf("API server listening at: %s\n", backendURL)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ch:
		return 0
	case err := <-serveErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		return 0
	}
}

// addBackendFlags registers the flags shared by the commands that start
// an offline backend.
func addBackendFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&addr, "listen", "l", "127.0.0.1:0", "Offline backend listen address.")
	fs.StringVar(&base, "base", "", "Load address of flat images (default 0x400000).")
	fs.IntVar(&mode, "mode", 64, "Decoding mode of flat images, 32 or 64.")
	fs.StringVar(&dbDir, "db-dir", "", "Directory of the comment and patch database (default ~/.cpuview/db).")
	fs.BoolVar(&pushDisassembly, "push-disassembly", false, "Deliver instruction windows on the push channel.")
}
