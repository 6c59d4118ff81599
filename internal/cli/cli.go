// Package cli implements the rtmp-auth command line.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/backends"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/config"
	"github.com/dmitrijs2005/rtmp-auth/internal/timex"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// Clipboard receives copied stream keys.
type Clipboard interface {
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// PasswordReader reads a password from the user.
type PasswordReader func() ([]byte, error)

// App holds the CLI application state.
type App struct {
	root         *cobra.Command
	out          io.Writer
	errOut       io.Writer
	clipboard    Clipboard
	readPassword PasswordReader
	clock        timex.Clock

	configPath string
	dotenv     string
}

// Option configures an App.
type Option func(*App)

func WithOutput(out, errOut io.Writer) Option {
	return func(a *App) {
		a.out = out
		a.errOut = errOut
	}
}

func WithClipboard(c Clipboard) Option {
	return func(a *App) { a.clipboard = c }
}

func WithPasswordReader(r PasswordReader) Option {
	return func(a *App) { a.readPassword = r }
}

func WithClock(c timex.Clock) Option {
	return func(a *App) { a.clock = c }
}

// NewApp creates the command tree.
func NewApp(opts ...Option) *App {
	a := &App{
		out:       os.Stdout,
		errOut:    os.Stderr,
		clipboard: systemClipboard{},
		clock:     timex.RealClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.readPassword == nil {
		a.readPassword = a.promptPassword
	}

	a.root = &cobra.Command{
		Use:           "rtmp-auth",
		Short:         "Publish authorization for RTMP streaming servers",
		Long: `rtmp-auth answers the publish callbacks of nginx-rtmp, srtrelay and SRS
and serves a small admin page to manage stream keys.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.root.SetOut(a.out)
	a.root.SetErr(a.errOut)

	a.root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "TOML config file")
	a.root.PersistentFlags().StringVar(&a.dotenv, "env-file", config.DefaultDotEnv, "dotenv file loaded into the environment")

	a.root.AddCommand(a.versionCmd())
	a.root.AddCommand(a.serveCmd())
	a.root.AddCommand(a.keygenCmd())
	a.root.AddCommand(a.hashPasswordCmd())
	a.root.AddCommand(a.streamsCmd())

	return a
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.out, "rtmp-auth %s (commit: %s)\n", Version, Commit)
		},
	}
}

// Execute runs the CLI with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

func (a *App) loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	return config.Load(a.configPath, a.dotenv, overrides...)
}

// openBackend opens the configured backend for read-only commands.
func (a *App) openBackend(ctx context.Context) (backends.Backend, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return backends.Open(ctx, cfg.Store, logging.New(a.errOut, cfg.Log.Level))
}

func (a *App) promptPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(a.errOut, "Password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(a.errOut)
		return pw, err
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
