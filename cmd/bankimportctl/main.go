// Command bankimportctl drives the bank import pipeline directly against the
// configured store and artifact backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"CimplrBankImport/internal/appmanager"
	"CimplrBankImport/internal/artifact"
	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/parsers"
	"CimplrBankImport/internal/store"
	"CimplrBankImport/internal/validation"

	"github.com/joho/godotenv"
)

const usage = `usage: bankimportctl [-env file] [-services file] <command> [flags] [args]

commands:
  migrate                                      apply the store schema
  ingest  -tenant T -company C [-user U] FILE  upload a statement
  stage   -tenant T ID                         parse an import into staging rows
  commit  -tenant T ID [ACCOUNT]               migrate staged rows into the ledger
  show    -tenant T [-rows N] ID               print an import and its rows
  fail    -tenant T ID REASON                  mark an import failed
  account add -tenant T -company C -name N [-currency CUR] [-id ID]
  ledger  -tenant T ACCOUNT                    list ledger entries of an account
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		printer{os.Stderr}.Error(err.Error())
		os.Exit(1)
	}
}

type env struct {
	store bankimport.Store
	svc   *bankimport.Service
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

func open(ctx context.Context, servicesFile string) (*env, error) {
	st, err := store.Open(ctx, config.DBFromEnv(), true)
	if err != nil {
		return nil, err
	}
	files, err := artifact.Open(ctx, config.ArtifactsFromEnv())
	if err != nil {
		st.Close()
		return nil, err
	}
	var cfg map[string]interface{}
	if seq, err := appmanager.LoadServiceSequence(servicesFile); err == nil {
		cfg = appmanager.FindConfig(seq, "bankimport")
	}
	opts, err := bankimport.OptionsFromConfig(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &env{
		store: st,
		svc:   bankimport.NewService(st, files, parsers.New(), opts),
	}, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("bankimportctl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	envFile := global.String("env", ".env", "dotenv file")
	servicesFile := global.String("services", "services.yaml", "service sequence file")
	if err := global.Parse(args); err != nil {
		return errors.New(usage)
	}
	_ = godotenv.Load(*envFile)

	rest := global.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}
	out := printer{stdout}
	cmd, cmdArgs := rest[0], rest[1:]

	e, err := open(ctx, *servicesFile)
	if err != nil {
		return err
	}
	defer e.Close()

	switch cmd {
	case "migrate":
		out.Success("schema applied (%s)", config.DBFromEnv().Driver)
		return nil
	case "ingest":
		return ingest(ctx, e, cmdArgs, out)
	case "stage":
		return stage(ctx, e, cmdArgs, out)
	case "commit":
		return commit(ctx, e, cmdArgs, out)
	case "show":
		return show(ctx, e, cmdArgs, out)
	case "fail":
		return fail(ctx, e, cmdArgs, out)
	case "account":
		return account(ctx, e, cmdArgs, out)
	case "ledger":
		return ledger(ctx, e, cmdArgs, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

type scopeFlags struct {
	fs      *flag.FlagSet
	tenant  *string
	company *string
	user    *string
}

func newScopeFlags(name string) *scopeFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return &scopeFlags{
		fs:      fs,
		tenant:  fs.String("tenant", os.Getenv("BANKIMPORT_TENANT"), "tenant id"),
		company: fs.String("company", os.Getenv("BANKIMPORT_COMPANY"), "company id"),
		user:    fs.String("user", os.Getenv("USER"), "uploader"),
	}
}

// parse reads flags and checks the tenant plus the expected positional count.
func (s *scopeFlags) parse(args []string, minArgs int) ([]string, error) {
	if err := s.fs.Parse(args); err != nil {
		return nil, err
	}
	if err := validation.ValidateID("tenant", *s.tenant); err != nil {
		return nil, err
	}
	if s.fs.NArg() < minArgs {
		return nil, fmt.Errorf("%s: missing arguments\n%s", s.fs.Name(), usage)
	}
	return s.fs.Args(), nil
}

func ingest(ctx context.Context, e *env, args []string, out printer) error {
	sf := newScopeFlags("ingest")
	rest, err := sf.parse(args, 1)
	if err != nil {
		return err
	}
	if err := validation.ValidateID("company", *sf.company); err != nil {
		return err
	}
	path := rest[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	filename := filepath.Base(path)
	if err := validation.ValidateUpload(filename, int64(len(data)), 0); err != nil {
		return err
	}
	res, err := e.svc.Ingest(ctx, data, bankimport.IngestMeta{
		TenantID:   *sf.tenant,
		CompanyID:  *sf.company,
		UploadedBy: *sf.user,
		Filename:   filename,
		MimeType:   mime.TypeByExtension(filepath.Ext(filename)),
		SizeBytes:  int64(len(data)),
	})
	if err != nil {
		return err
	}
	out.Header("ingest " + filename)
	out.Info("import %s", res.ImportID)
	out.Status(res.Status)
	if res.IsDuplicate {
		out.Warning("identical file already uploaded; reusing import")
	}
	if res.Recovered {
		out.Warning("missing artifact restored from this upload")
	}
	return nil
}

func stage(ctx context.Context, e *env, args []string, out printer) error {
	sf := newScopeFlags("stage")
	rest, err := sf.parse(args, 1)
	if err != nil {
		return err
	}
	res, err := e.svc.Stage(ctx, rest[0], *sf.tenant)
	if err != nil {
		return err
	}
	out.Header("stage " + rest[0])
	out.Info("format %s", res.DetectedFormat)
	out.Stats(res.Stats)
	out.Rows(res.Preview)
	if res.Stats[bankimport.StatRowsError] > 0 {
		out.Warning("%d rows have errors and will not be committed", res.Stats[bankimport.StatRowsError])
	}
	return nil
}

func commit(ctx context.Context, e *env, args []string, out printer) error {
	sf := newScopeFlags("commit")
	rest, err := sf.parse(args, 1)
	if err != nil {
		return err
	}
	var acct string
	if len(rest) > 1 {
		acct = rest[1]
	}
	res, err := e.svc.Commit(ctx, rest[0], *sf.tenant, acct)
	if err != nil {
		return err
	}
	out.Header("commit " + rest[0])
	out.Success("%d inserted, %d duplicated of %d eligible", res.Inserted, res.Duplicated, res.Total)
	return nil
}

func show(ctx context.Context, e *env, args []string, out printer) error {
	sf := newScopeFlags("show")
	limit := sf.fs.Int("rows", 20, "rows to print")
	rest, err := sf.parse(args, 1)
	if err != nil {
		return err
	}
	imp, err := e.svc.Get(ctx, rest[0], *sf.tenant)
	if err != nil {
		return err
	}
	out.Header(imp.Filename)
	out.Info("import %s (company %s)", imp.ID, imp.CompanyID)
	out.Status(imp.Status)
	if imp.DetectedFormat != "" {
		out.Info("format %s", imp.DetectedFormat)
	}
	if imp.FailureReason != "" {
		out.Warning("failure: %s", imp.FailureReason)
	}
	out.Stats(imp.Stats)
	if *limit > 0 {
		rows, err := e.svc.Rows(ctx, imp.ID, *sf.tenant, bankimport.RowFilter{Limit: *limit})
		if err != nil {
			return err
		}
		out.Rows(rows)
	}
	return nil
}

func fail(ctx context.Context, e *env, args []string, out printer) error {
	sf := newScopeFlags("fail")
	rest, err := sf.parse(args, 2)
	if err != nil {
		return err
	}
	imp, err := e.svc.Fail(ctx, rest[0], *sf.tenant, rest[1])
	if err != nil {
		return err
	}
	out.Status(imp.Status)
	return nil
}

func account(ctx context.Context, e *env, args []string, out printer) error {
	if len(args) == 0 || args[0] != "add" {
		return fmt.Errorf("account: want \"account add\"\n%s", usage)
	}
	sf := newScopeFlags("account add")
	name := sf.fs.String("name", "", "account name")
	currency := sf.fs.String("currency", "", "ISO currency")
	id := sf.fs.String("id", "", "account id (generated when empty)")
	if _, err := sf.parse(args[1:], 0); err != nil {
		return err
	}
	if err := validation.ValidateID("company", *sf.company); err != nil {
		return err
	}
	acct := &bankimport.Account{ID: *id, TenantID: *sf.tenant, CompanyID: *sf.company, Name: *name, Currency: *currency}
	if err := e.svc.RegisterAccount(ctx, acct); err != nil {
		return err
	}
	out.Success("account %s registered", acct.ID)
	return nil
}

func ledger(ctx context.Context, e *env, args []string, out printer) error {
	sf := newScopeFlags("ledger")
	rest, err := sf.parse(args, 1)
	if err != nil {
		return err
	}
	txns, err := e.svc.Ledger(ctx, *sf.tenant, rest[0])
	if err != nil {
		return err
	}
	out.Header("ledger " + rest[0])
	for _, t := range txns {
		fmt.Fprintf(out.w, "%s  %12s %s  %-4s %s\n", t.BookingDate.Format("2006-01-02"), t.Amount.String(), t.Currency, t.Direction, t.Description)
	}
	out.Info("%d entries", len(txns))
	return nil
}
