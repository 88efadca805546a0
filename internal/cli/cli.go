package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/ignatij/ingestctl/internal/config"
	"github.com/ignatij/ingestctl/internal/log"
	internal_storage "github.com/ignatij/ingestctl/internal/storage"
	"github.com/ignatij/ingestctl/pkg/api"
	"github.com/ignatij/ingestctl/pkg/service"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/ignatij/ingestctl/pkg/wizard"
	"github.com/spf13/cobra"
)

type options struct {
	store      storage.Store
	httpClient *http.Client
}

type Option func(*options)

// WithStore makes every command use store instead of opening the
// configured one. The caller keeps ownership.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// SetupCLI registers the persistent flags and all subcommands on rootCmd.
func SetupCLI(rootCmd *cobra.Command, opts ...Option) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("store-driver", "", "Store driver: sqlite, postgres or memory")
	flags.String("store-dsn", "", "Store location (file path or connection string)")
	flags.String("api-url", "", "Backend base URL")
	flags.String("log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")
	flags.Bool("json", false, "Print results as JSON")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(
		loginCmd(o), logoutCmd(o),
		bucketsCmd(o), containersCmd(o),
		jobsCmd(o), stagesCmd(o),
		pipelinesCmd(o),
		wizardCmd(o),
		metricsCmd(o),
		serveCmd(o),
	)
}

// app is what one command invocation works with.
type app struct {
	cfg       config.Config
	store     storage.Store
	ownsStore bool
	svc       *service.WorkspaceService
	client    *api.Client
	wizard    *wizard.Orchestrator
	out       io.Writer
	json      bool
}

func newApp(cmd *cobra.Command, o *options) (*app, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil && o.store == nil {
		return nil, toast("Invalid configuration", err)
	}
	if err != nil {
		cfg = config.Default()
	}
	if v, _ := flags.GetString("api-url"); v != "" {
		cfg.APIURL = v
	}
	if v, _ := flags.GetString("store-driver"); v != "" {
		cfg.Store.Driver = v
	}
	if v, _ := flags.GetString("store-dsn"); v != "" {
		cfg.Store.DSN = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	log.SetLevel(cfg.LogLevel)

	a := &app{cfg: cfg, store: o.store, out: cmd.OutOrStdout()}
	a.json, _ = flags.GetBool("json")
	if a.store == nil {
		log.GetLogger().Debugf("Opening %s store at %s", cfg.Store.Driver, cfg.Store.DSN)
		store, err := internal_storage.InitStore(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, toast("Could not open local state", err)
		}
		a.store = store
		a.ownsStore = true
	}

	var clientOpts []api.Option
	if o.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.httpClient))
	}
	a.client, err = api.NewClient(cfg.APIURL, a.store, clientOpts...)
	if err != nil {
		a.Close()
		return nil, toast("Invalid backend URL", err)
	}
	a.svc = service.NewWorkspaceService(a.store, log.GetLogger())
	a.wizard = wizard.NewOrchestrator(a.store)
	return a, nil
}

func (a *app) Close() {
	if a.ownsStore {
		if err := a.store.Close(); err != nil {
			log.GetLogger().Errorf("Failed to close store: %v", err)
		}
	}
}

// run opens the app for the duration of fn.
func run(o *options, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, o)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// printJSON writes v when --json is set and reports whether it did.
func (a *app) printJSON(v any) bool {
	if !a.json {
		return false
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode output: %v", err)
	}
	return true
}

func (a *app) table(header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

// ToastError is a failure shown to the user as a title and a description.
type ToastError struct {
	Title string
	Err   error
}

func (e *ToastError) Error() string {
	return e.Title + ": " + Describe(e.Err)
}

func (e *ToastError) Unwrap() error { return e.Err }

func toast(title string, err error) error {
	if err == nil {
		return nil
	}
	var t *ToastError
	if stderrors.As(err, &t) {
		return err
	}
	return &ToastError{Title: title, Err: err}
}

// Describe turns an error into the text shown under a toast title.
func Describe(err error) string {
	var apiErr *api.APIError
	var verrs wizard.ValidationErrors
	var netErr net.Error
	switch {
	case stderrors.Is(err, api.ErrNoToken):
		return "you are not logged in; run `ingestctl login` first"
	case stderrors.As(err, &apiErr):
		return apiErr.Message()
	case stderrors.As(err, &verrs):
		return verrs.Error()
	case stderrors.As(err, &netErr):
		return "something went wrong reaching the backend"
	}
	return err.Error()
}

// Report prints err the way every command reports failures.
func Report(w io.Writer, err error) {
	var t *ToastError
	if stderrors.As(err, &t) {
		fmt.Fprintf(w, "Error: %s: %s\n", t.Title, Describe(t.Err))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
