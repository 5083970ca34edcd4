// Command normctl is the operator CLI: it runs normalization, prints results
// and standings, exports workbooks and mints operator tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/peterbourgon/ff/v3"

	auth "github.com/nehasri1207/RankSarthi/internal/auth/middleware"
	"github.com/nehasri1207/RankSarthi/internal/config"
	"github.com/nehasri1207/RankSarthi/internal/db"
	"github.com/nehasri1207/RankSarthi/internal/exam"
	"github.com/nehasri1207/RankSarthi/internal/export"
	"github.com/nehasri1207/RankSarthi/internal/logging"
	"github.com/nehasri1207/RankSarthi/internal/normalization"
	"github.com/nehasri1207/RankSarthi/internal/rbac"
	"github.com/nehasri1207/RankSarthi/internal/standing"
	syncx "github.com/nehasri1207/RankSarthi/internal/sync"
)

type options struct {
	dbDriver string
	dbDSN    string
	examID   string

	list    bool
	run     bool
	results bool
	export  string

	standing bool
	score    float64
	category string
	zone     string
	date     string
	shift    string
	basis    string

	token      string
	subject    string
	authSecret string
	tokenTTL   time.Duration
	logLevel   string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("normctl", flag.ContinueOnError)
	_ = fs.String("config", "", "config file (optional), json format")
	fs.StringVar(&o.dbDriver, "db-driver", "sqlite", "database driver: sqlite|postgres")
	fs.StringVar(&o.dbDSN, "db-dsn", "", "database DSN (driver default when empty)")
	fs.StringVar(&o.examID, "exam", "", "exam id")

	fs.BoolVar(&o.list, "list", false, "list exams")
	fs.BoolVar(&o.run, "run", false, "run normalization for -exam now")
	fs.BoolVar(&o.results, "results", false, "print stored results for -exam")
	fs.StringVar(&o.export, "export", "", "write results of -exam to this .xlsx path")

	fs.BoolVar(&o.standing, "standing", false, "print standings of -score in -exam")
	fs.Float64Var(&o.score, "score", 0, "score to rank")
	fs.StringVar(&o.category, "category", "", "category scope")
	fs.StringVar(&o.zone, "zone", "", "zone scope")
	fs.StringVar(&o.date, "date", "", "session date scope (with -shift)")
	fs.StringVar(&o.shift, "shift", "", "session shift scope (with -date)")
	fs.StringVar(&o.basis, "basis", string(exam.BasisRaw), "score basis: raw|normalized")

	fs.StringVar(&o.token, "token", "", "issue a bearer token for this role ("+rbac.RoleOperator+"|"+rbac.RoleAdmin+")")
	fs.StringVar(&o.subject, "subject", "normctl", "token subject")
	fs.StringVar(&o.authSecret, "auth-secret", "", "HMAC secret shared with the gateway")
	fs.DurationVar(&o.tokenTTL, "auth-token-ttl", 8*time.Hour, "token lifetime")
	fs.StringVar(&o.logLevel, "logging-level", "warn", "log level")

	err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.JSONParser),
		ff.WithEnvVarPrefix(config.EnvPrefix),
	)
	return o, err
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, o, os.Stdout); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, o options, w io.Writer) error {
	if o.token != "" {
		return issueToken(o, w)
	}

	dbh, err := db.Open(ctx, db.Driver(o.dbDriver), o.dbDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()
	store := exam.NewSQLStore(dbh, o.dbDriver)
	return execute(ctx, o, store, syncx.NewEventRepo(dbh), w)
}

// execute performs every action requested in o against store.
func execute(ctx context.Context, o options, store exam.Store, events syncx.Appender, w io.Writer) error {
	if o.list {
		list, err := store.ListExams(ctx, exam.ListOpts{})
		if err != nil {
			return err
		}
		printExams(w, list)
	}
	if !o.run && !o.results && !o.standing && o.export == "" {
		if !o.list {
			return errors.New("nothing to do: pass -list, -run, -results, -standing, -export or -token")
		}
		return nil
	}
	if o.examID == "" {
		return errors.New("-exam is required")
	}

	if o.run {
		log := logging.New(config.LoggingConfig{Level: o.logLevel, Format: "text"})
		runner := normalization.NewRunner(store, normalization.WithLogger(log), normalization.WithEvents(events))
		res, err := runner.Run(ctx, o.examID)
		if err != nil {
			return err
		}
		printRunResult(w, res)
	}
	if o.results {
		rows, err := store.ListResults(ctx, o.examID)
		if err != nil {
			return err
		}
		printResults(w, rows)
	}
	if o.standing {
		q := standing.Query{Score: o.score, Category: o.category, Zone: o.zone, Basis: exam.ScoreBasis(o.basis)}
		if o.date != "" && o.shift != "" {
			q.Session = &exam.SessionKey{Date: o.date, Shift: o.shift}
		}
		st, err := standing.New(store, nil).Compute(ctx, o.examID, q)
		if err != nil {
			return err
		}
		printStandings(w, q, st)
	}
	if o.export != "" {
		if err := exportWorkbook(ctx, store, o.examID, o.export); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", o.export)
	}
	return nil
}

func exportWorkbook(ctx context.Context, store exam.Store, examID, path string) error {
	e, err := store.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	rows, err := store.ListResults(ctx, examID)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Results(f, e, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func issueToken(o options, w io.Writer) error {
	if o.token != rbac.RoleOperator && o.token != rbac.RoleAdmin {
		return fmt.Errorf("unknown role %q", o.token)
	}
	if o.authSecret == "" {
		return errors.New("-auth-secret (or RANKSARTHI_AUTH_SECRET) is required")
	}
	svc := auth.NewAuthService(config.AuthConfig{Secret: o.authSecret, TokenTTL: o.tokenTTL})
	tok, exp, err := svc.IssueJWT(o.subject, o.token)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "normctl: %v\n", err)
	os.Exit(1)
}
