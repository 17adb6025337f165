package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"expensync/internal/apiclient"
	"expensync/internal/config"
	"expensync/internal/connectivity"
	"expensync/internal/core"
	"expensync/internal/localstore"
	applog "expensync/internal/log"
	"expensync/internal/offline"
	"expensync/internal/worker"
)

// errUsage is returned after the usage text has been printed.
var errUsage = errors.New("usage")

// App runs one client command.
type App struct {
	cfg    *config.ClientConfig
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *applog.Logger
	now    func() time.Time
}

func NewApp(cfg *config.ClientConfig, stdin io.Reader, stdout, stderr io.Writer, logger *applog.Logger) *App {
	return &App{cfg: cfg, stdin: stdin, stdout: stdout, stderr: stderr, logger: logger, now: time.Now}
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(a *App, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"register", "-email E [-name N] [-password P]", "create an account and log in", (*App).cmdRegister},
		{"login", "-email E [-password P]", "log in and store the session", (*App).cmdLogin},
		{"logout", "[-force]", "forget the stored session", (*App).cmdLogout},
		{"whoami", "", "show the logged in user", (*App).cmdWhoami},
		{"add", "-category C -description D -amount 12.34 [-date YYYY-MM-DD] [-photo FILE] [-lat N -lon N] [-address A]", "record an expense, queued when offline", (*App).cmdAdd},
		{"list", "[-from D] [-to D] [-category C] [-limit N]", "list expenses including pending ones", (*App).cmdList},
		{"edit", "REF [-category C] [-description D] [-amount A] [-date D] [-photo FILE] [-lat N -lon N] [-address A]", "change an expense by id or pending client id", (*App).cmdEdit},
		{"delete", "REF", "delete an expense by id or pending client id", (*App).cmdDelete},
		{"summary", "[-from D] [-to D] [-category C]", "totals by category", (*App).cmdSummary},
		{"sync", "", "upload pending expenses now", (*App).cmdSync},
		{"pending", "", "show expenses waiting for upload", (*App).cmdPending},
		{"daemon", "", "watch connectivity and sync in the background", (*App).cmdDaemon},
		{"push-register", "-token T -platform android|ios|web", "register a device for notifications", (*App).cmdPushRegister},
		{"admin", "users|role|disable|enable|delete|dashboard|broadcast ...", "administration commands", (*App).cmdAdmin},
	}
}

// Run executes args and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(a, ctx, args[1:])
		switch {
		case err == nil:
			return 0
		case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
			return 2
		default:
			a.logger.Debug("Command failed", "command", c.name, "error", err)
			fmt.Fprintln(a.stderr, "error: "+a.userMessage(err))
			return 1
		}
	}
	fmt.Fprintf(a.stderr, "unknown command %q\n\n", args[0])
	a.usage()
	return 2
}

func (a *App) usage() {
	fmt.Fprintln(a.stderr, "usage: expensync <command> [flags]")
	fmt.Fprintln(a.stderr)
	for _, c := range commands {
		fmt.Fprintf(a.stderr, "  %-14s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(a.stderr)
	fmt.Fprintln(a.stderr, "Every command accepts -o table|json|yaml.")
}

// userMessage turns err into a sentence for the terminal.
func (a *App) userMessage(err error) string {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return "not logged in, run: expensync login -email you@example.com"
	case apiclient.IsNetworkError(err):
		return fmt.Sprintf("cannot reach the server at %s", a.cfg.APIURL)
	case errors.Is(err, context.DeadlineExceeded):
		return "the server took too long to answer"
	case errors.Is(err, localstore.ErrNotFound), errors.Is(err, core.ErrNotFound):
		return "expense not found"
	case errors.As(err, &apiErr):
		return apiMessage(apiErr)
	}
	return err.Error()
}

func apiMessage(e *apiclient.APIError) string {
	switch e.Status {
	case http.StatusUnauthorized:
		if e.Message != "" && e.Message != "unauthorized" {
			return e.Message
		}
		return "session expired or invalid, run: expensync login"
	case http.StatusForbidden:
		return "permission denied: " + nonEmpty(e.Message, "forbidden")
	case http.StatusNotFound:
		return nonEmpty(e.Message, "not found")
	case http.StatusTooManyRequests:
		return "too many requests, try again shortly"
	case http.StatusRequestEntityTooLarge:
		return "photo is too large"
	case http.StatusUnsupportedMediaType:
		return "photo must be a JPEG, PNG or WebP image"
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+" "+e.Fields[k])
		}
		return "invalid input: " + strings.Join(parts, ", ")
	}
	if e.Status >= 500 {
		return fmt.Sprintf("server error (%d), try again later", e.Status)
	}
	return nonEmpty(e.Message, http.StatusText(e.Status))
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// flags returns a FlagSet for cmd with the shared -o flag registered.
func (a *App) flags(cmd, usage string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	format := fs.String("o", FormatTable, "output format: table, json or yaml")
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: expensync %s %s\n", cmd, usage)
		fs.PrintDefaults()
	}
	return fs, format
}

// parse parses args and checks the output format.
func parse(fs *flag.FlagSet, format *string, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !validFormat(*format) {
		fs.Usage()
		return errUsage
	}
	return nil
}

func (a *App) printer(format string) printer {
	return printer{w: a.stdout, format: format}
}

func (a *App) client() *apiclient.Client {
	return apiclient.New(a.cfg.APIURL, a.cfg.HTTPTimeout)
}

// authedClient loads the session and returns a client carrying its token.
func (a *App) authedClient() (*apiclient.Client, Session, error) {
	s, err := LoadSession(a.cfg.SessionFile)
	if err != nil {
		return nil, Session{}, err
	}
	if s.Expired(a.now()) {
		return nil, Session{}, fmt.Errorf("%w: session expired on %s", ErrNotLoggedIn, s.ExpiresAt.Local().Format(time.DateTime))
	}
	c := a.client()
	c.SetToken(s.Token)
	return c, s, nil
}

// env wires the offline stack for commands that may work without network.
type env struct {
	api      *apiclient.Client
	store    *localstore.Store
	observer *connectivity.Observer
	repo     *offline.Repository
}

func (a *App) openEnv(ctx context.Context) (*env, error) {
	api, _, err := a.authedClient()
	if err != nil {
		return nil, err
	}
	store, err := localstore.Open(ctx, a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	obs := connectivity.NewObserver(api, a.cfg.ConnectivityInterval,
		a.logger.WithComponent(applog.ComponentConnectivity).Slog())
	repo := offline.NewRepository(api, store, obs, a.logger.WithComponent(applog.ComponentOffline).Slog())
	return &env{api: api, store: store, observer: obs, repo: repo}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

func (e *env) worker(a *App) *worker.SyncWorker {
	return worker.NewSyncWorker(e.api, e.store, e.observer, worker.SyncConfig{
		Schedule:  a.cfg.SyncSchedule,
		BatchSize: a.cfg.SyncBatchSize,
	}, a.logger.WithComponent(applog.ComponentWorker).Slog())
}

// readPassword returns flagValue, EXPENSYNC_PASSWORD or the first line of
// stdin, in that order.
func (a *App) readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("EXPENSYNC_PASSWORD"); env != "" {
		return env, nil
	}
	fmt.Fprint(a.stderr, "Password: ")
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprintln(a.stderr)
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}
