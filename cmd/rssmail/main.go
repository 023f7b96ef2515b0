// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.astrophena.name/rssmail/cmd/rssmail/internal/dispatch"
	"go.astrophena.name/rssmail/cmd/rssmail/internal/feed"
	"go.astrophena.name/rssmail/cmd/rssmail/internal/gmail"
	"go.astrophena.name/rssmail/cmd/rssmail/internal/ledger"
	"go.astrophena.name/rssmail/cmd/rssmail/internal/recipients"
	"go.astrophena.name/rssmail/cmd/rssmail/internal/report"
	"go.astrophena.name/rssmail/internal/cli"
	"go.astrophena.name/rssmail/internal/filelock"
	"go.astrophena.name/rssmail/internal/logger"
	"go.astrophena.name/rssmail/internal/request"

	"github.com/joho/godotenv"
)

var (
	errAlreadyRunning  = errors.New("already running")
	errUnknownDriver   = errors.New("unknown ledger driver")
	errInvalidSetting  = errors.New("invalid setting")
	errImportNeedsFile = errors.New("ledger import expects a file")
)

const (
	defaultFromName    = "Default From Name"
	defaultFromAddress = "default@example.com"
	defaultFeedURL     = "https://defaultrss.com/feed"
)

func main() { cli.Main(new(mailer)) }

type mailer struct {
	// configuration
	configFile      string
	credentials     string
	dry             bool
	errorLog        string
	feedURL         string
	fromAddress     string
	fromName        string
	ledgerDriver    string
	ledgerPath      string
	parallel        int
	recipients      string
	requireDelivery bool
	rules           string
	sendRate        float64
	stateDir        string
	token           string
	verbose         bool

	// httpc is used for feed and Google requests. If nil, request.DefaultClient
	// is used.
	httpc *http.Client
	// gmailEndpoint overrides the Gmail API base URL.
	gmailEndpoint string
	// now acts as time.Now, but can be mocked for testing.
	now func() time.Time

	// initialized by Run
	slog     *slog.Logger
	reporter *report.Reporter
}

func (m *mailer) Flags(fs *flag.FlagSet) {
	fs.StringVar(&m.configFile, "config", "", "Path to the dotenv `file` with settings. Defaults to rssmail.env in the state directory.")
	fs.StringVar(&m.credentials, "credentials", "", "OAuth client secrets `file`.")
	fs.BoolVar(&m.dry, "dry", false, "Enable dry-run mode: log actions, but don't send emails or write the ledger.")
	fs.StringVar(&m.errorLog, "error-log", "", "Error log `file`.")
	fs.StringVar(&m.feedURL, "feed", "", "Feed `URL`.")
	fs.StringVar(&m.fromAddress, "from-address", "", "Sender `address`.")
	fs.StringVar(&m.fromName, "from-name", "", "Sender display `name`.")
	fs.StringVar(&m.ledgerDriver, "ledger-driver", "", "Ledger `driver`: text or sqlite.")
	fs.StringVar(&m.ledgerPath, "ledger", "", "Ledger `file`.")
	fs.IntVar(&m.parallel, "parallel", 0, "Maximum `number` of recipients one item is sent to at once.")
	fs.StringVar(&m.recipients, "recipients", "", "Recipients as `Name:address` pairs separated by semicolons.")
	fs.BoolVar(&m.requireDelivery, "require-delivery", false, "Don't record items that reached no recipient.")
	fs.StringVar(&m.rules, "rules", "", "Starlark rules `file`.")
	fs.Float64Var(&m.sendRate, "send-rate", 0, "Maximum emails per `second`, 0 means unlimited.")
	fs.StringVar(&m.stateDir, "state-dir", "", "State `directory`.")
	fs.StringVar(&m.token, "token", "", "OAuth token `file`.")
	fs.BoolVar(&m.verbose, "v", false, "Enable debug logging.")
}

func (m *mailer) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	if err := m.configure(ctx); err != nil {
		return err
	}

	l := logger.Get(ctx)
	m.slog = l.Logger
	// Enable debug logging in dry-run mode.
	if m.dry || m.verbose {
		l.Level.Set(slog.LevelDebug)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.httpc == nil {
		m.httpc = request.DefaultClient
	}
	m.reporter = report.New(report.Options{
		Stdout:  env.Stdout,
		Stderr:  env.Stderr,
		LogPath: m.errorLog,
		Now:     m.now,
	})

	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}
	command := env.Args[0]

	switch command {
	case "run":
		return m.run(ctx)
	case "auth":
		return m.auth(ctx)
	case "seed":
		return m.seed(ctx)
	case "ledger":
		switch {
		case len(env.Args) == 1:
			return m.listLedger(ctx)
		case env.Args[1] == "import" && len(env.Args) == 3:
			return m.importLedger(ctx, env.Args[2])
		case env.Args[1] == "import":
			return fmt.Errorf("%w: %w", cli.ErrInvalidArgs, errImportNeedsFile)
		default:
			return fmt.Errorf("%w: no such ledger command %q", cli.ErrInvalidArgs, env.Args[1])
		}
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

// configure fills every setting that wasn't given as a flag from the
// environment, then from the dotenv file, then from defaults.
func (m *mailer) configure(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	m.stateDir = cmp.Or(m.stateDir, env.Getenv("STATE_DIRECTORY"))
	if m.stateDir == "" {
		xdgStateHome := env.Getenv("XDG_STATE_HOME")
		if xdgStateHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			xdgStateHome = filepath.Join(home, ".local", "state")
		}
		m.stateDir = filepath.Join(xdgStateHome, "rssmail")
	}
	if err := os.MkdirAll(m.stateDir, 0o700); err != nil {
		return err
	}

	dotenv, err := m.readDotenv()
	if err != nil {
		return err
	}
	lookup := func(key string) string {
		return cmp.Or(env.Getenv(key), dotenv[key])
	}

	m.fromName = cmp.Or(m.fromName, lookup("EMAIL_FROM_NAME"), defaultFromName)
	m.fromAddress = cmp.Or(m.fromAddress, lookup("EMAIL_FROM_ADDRESS"), defaultFromAddress)
	m.feedURL = cmp.Or(m.feedURL, lookup("RSS_FEED_ADDRESS"), defaultFeedURL)
	m.recipients = cmp.Or(
		m.recipients,
		lookup("EMAIL_RECIPIENTS"),
		recipients.Legacy(lookup("EMAIL_TO_NAME"), lookup("EMAIL_TO_ADDRESS")),
	)

	m.ledgerDriver = cmp.Or(m.ledgerDriver, lookup("LEDGER_DRIVER"), "text")
	defaultLedger := "URL_Log.txt"
	switch m.ledgerDriver {
	case "text":
	case "sqlite":
		defaultLedger = "ledger.db"
	default:
		return fmt.Errorf("%w %q", errUnknownDriver, m.ledgerDriver)
	}
	m.ledgerPath = m.statePath(cmp.Or(m.ledgerPath, lookup("LEDGER_FILE"), defaultLedger))
	m.errorLog = m.statePath(cmp.Or(m.errorLog, lookup("ERROR_LOG"), "ErrorLog.txt"))
	m.credentials = m.statePath(cmp.Or(m.credentials, lookup("CREDENTIALS_FILE"), "credentials.json"))
	m.token = m.statePath(cmp.Or(m.token, lookup("TOKEN_FILE"), "token.json"))
	if rules := cmp.Or(m.rules, lookup("RULES_FILE")); rules != "" {
		m.rules = m.statePath(rules)
	}

	if !m.requireDelivery {
		if m.requireDelivery, err = parseBool("REQUIRE_DELIVERY", lookup("REQUIRE_DELIVERY")); err != nil {
			return err
		}
	}
	if m.parallel == 0 {
		if m.parallel, err = parseInt("PARALLEL_SENDS", lookup("PARALLEL_SENDS")); err != nil {
			return err
		}
	}
	m.parallel = max(m.parallel, 1)
	if m.sendRate == 0 {
		if m.sendRate, err = parseFloat("SEND_RATE", lookup("SEND_RATE")); err != nil {
			return err
		}
	}
	return nil
}

func (m *mailer) readDotenv() (map[string]string, error) {
	path := cmp.Or(m.configFile, filepath.Join(m.stateDir, "rssmail.env"))
	vals, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) && m.configFile == "" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vals, nil
}

// statePath resolves relative paths against the state directory.
func (m *mailer) statePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.stateDir, path)
}

func parseBool(key, val string) (bool, error) {
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w %s=%q: %w", errInvalidSetting, key, val, err)
	}
	return b, nil
}

func parseInt(key, val string) (int, error) {
	if val == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w %s=%q: %w", errInvalidSetting, key, val, err)
	}
	return i, nil
}

func parseFloat(key, val string) (float64, error) {
	if val == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %s=%q: %w", errInvalidSetting, key, val, err)
	}
	return f, nil
}

// lock takes the run lock of the state directory. Contention is also written
// to the error log.
func (m *mailer) lock() (*filelock.Lock, error) {
	l, err := filelock.TryLock(filepath.Join(m.stateDir, ".run.lock"))
	if errors.Is(err, filelock.ErrAlreadyLocked) {
		err = fmt.Errorf("%w: %w", errAlreadyRunning, err)
		m.reporter.Logf("lock", err)
		return nil, err
	}
	return l, err
}

func (m *mailer) authenticator() *gmail.Authenticator {
	return gmail.NewAuthenticator(gmail.Config{
		CredentialsFile: m.credentials,
		TokenFile:       m.token,
		SendRate:        m.sendRate,
		Endpoint:        m.gmailEndpoint,
		HTTPClient:      m.httpc,
		Logger:          m.slog,
	})
}

func (m *mailer) fetcher() *feed.Fetcher {
	return &feed.Fetcher{HTTPClient: m.httpc}
}

// store is a ledger that can list its entries.
type store interface {
	dispatch.Ledger
	Entries() []string
}

// openLedger opens the configured ledger. The returned function releases it.
func (m *mailer) openLedger(ctx context.Context) (store, func() error, error) {
	if m.ledgerDriver == "sqlite" {
		db, err := ledger.OpenSQLite(ctx, m.ledgerPath)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return ledger.NewFile(m.ledgerPath), func() error { return nil }, nil
}

func (m *mailer) run(ctx context.Context) error {
	lk, err := m.lock()
	if err != nil {
		return err
	}
	defer lk.Unlock()

	deps := dispatch.Deps{
		Fetcher:       m.fetcher(),
		Authenticator: m.authenticator(),
		Logger:        m.slog,
		Now:           m.now,
	}
	// Without recipients the engine stops before using the ledger or rules,
	// so neither is opened.
	if rs, _ := recipients.Parse(m.recipients); len(rs) > 0 {
		st, closeLedger, err := m.openLedger(ctx)
		if err != nil {
			return m.setupFailed(ctx, "ledger", fmt.Errorf("%w: %w", dispatch.ErrLedgerRead, err))
		}
		defer closeLedger()
		deps.Ledger = st

		if m.rules != "" {
			rules, err := feed.LoadRules(m.rules, m.slog)
			if err != nil {
				return m.setupFailed(ctx, "rules", fmt.Errorf("loading rules: %w", err))
			}
			deps.Filter = rules
		}
	}

	o := dispatch.New(dispatch.Config{
		FromName:        m.fromName,
		FromAddress:     m.fromAddress,
		FeedURL:         m.feedURL,
		Recipients:      m.recipients,
		RequireDelivery: m.requireDelivery,
		Parallel:        m.parallel,
		Dry:             m.dry,
	}, deps).Run(ctx)

	m.reporter.Report(o)
	return nil
}

// setupFailed reports a problem that prevented a run from starting. Like
// failures inside a run, it doesn't fail the command.
func (m *mailer) setupFailed(ctx context.Context, source string, err error) error {
	fmt.Fprintf(cli.GetEnv(ctx).Stdout, "RSS check failed: %v\n", err)
	m.reporter.Logf(source, err)
	return nil
}

func (m *mailer) auth(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	return m.authenticator().Authorize(ctx, env.Stdin, env.Stdout)
}

func (m *mailer) seed(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	lk, err := m.lock()
	if err != nil {
		return err
	}
	defer lk.Unlock()

	st, closeLedger, err := m.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()
	if err := st.Load(ctx); err != nil {
		return err
	}

	items, err := m.fetcher().Fetch(ctx, m.feedURL)
	if err != nil {
		m.reporter.Logf("feed", err)
		return err
	}

	var recorded int
	for _, item := range items {
		if item.Identity == "" {
			env.Logf("Skipping item %q: it has neither GUID nor link.", item.Title)
			continue
		}
		if dispatch.Delivered(st, item) {
			continue
		}
		if m.dry {
			m.slog.Info("would record", "item", item.Identity)
			continue
		}
		if err := st.Record(ctx, item.Identity); err != nil {
			m.reporter.Logf("ledger", err)
			return err
		}
		recorded++
	}
	fmt.Fprintf(env.Stdout, "Recorded %d of %d items.\n", recorded, len(items))
	return nil
}

func (m *mailer) listLedger(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	st, closeLedger, err := m.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()
	if err := st.Load(ctx); err != nil {
		return err
	}
	for _, id := range st.Entries() {
		fmt.Fprintln(env.Stdout, id)
	}
	return nil
}

func (m *mailer) importLedger(ctx context.Context, path string) error {
	env := cli.GetEnv(ctx)

	if _, err := os.Stat(path); err != nil {
		return err
	}
	src := ledger.NewFile(path)
	if err := src.Load(ctx); err != nil {
		return err
	}

	lk, err := m.lock()
	if err != nil {
		return err
	}
	defer lk.Unlock()

	st, closeLedger, err := m.openLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()
	if err := st.Load(ctx); err != nil {
		return err
	}

	ids := src.Entries()
	if m.dry {
		m.slog.Info("would import", "entries", len(ids), "into", m.ledgerPath)
		return nil
	}

	var added int
	if db, ok := st.(*ledger.SQLite); ok {
		if added, err = db.Import(ctx, ids); err != nil {
			return err
		}
	} else {
		for _, id := range ids {
			if st.Contains(id) {
				continue
			}
			if err := st.Record(ctx, id); err != nil {
				return err
			}
			added++
		}
	}
	fmt.Fprintf(env.Stdout, "Imported %d of %d entries into %s.\n", added, len(ids), m.ledgerPath)
	return nil
}
