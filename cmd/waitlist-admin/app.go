package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/tablewait/waitlist-admin/apiclient"
	"github.com/tablewait/waitlist-admin/auth"
	"github.com/tablewait/waitlist-admin/config"
	"github.com/tablewait/waitlist-admin/internal/logctx"
	"github.com/tablewait/waitlist-admin/route"
	"github.com/tablewait/waitlist-admin/session"
	"github.com/tablewait/waitlist-admin/storage"
	"github.com/tablewait/waitlist-admin/storage/file"
	"github.com/tablewait/waitlist-admin/storage/memory"
	"github.com/tablewait/waitlist-admin/storage/redis"
)

const usage = `usage: waitlist-admin [-api URL] [-profile NAME] <command> [args]

commands:
  login -u USER [-p PASS]   log in (password also read from WAITLIST_PASSWORD)
  logout                    end the session
  whoami                    show the session
  use BUSINESS_ID | -       select the business to administer, - clears
  routes [ROUTE]            list reachable screens, or resolve one
  businesses                list businesses, marking the session scope
  watch                     print session changes made by other invocations
`

type app struct {
	cfg    *config.Config
	log    *slog.Logger
	out    io.Writer
	store  storage.Storage
	api    *apiclient.Client
	sess   *session.Manager
	guard  *route.Guard
	closer func()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("waitlist-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	apiURL := fs.String("api", "", "API base URL (overrides WAITLIST_API_URL)")
	profile := fs.String("profile", "", "session profile (overrides WAITLIST_PROFILE)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *profile != "" {
		cfg.Profile = *profile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	handler, ok := commands[cmd]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	a, err := newApp(ctx, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.closer()

	return handler(ctx, a, rest)
}

func newApp(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*app, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	log := slog.New(logctx.Handler{Handler: slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl})})

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	api, err := apiclient.New(cfg.APIURL, apiclient.WithTimeout(cfg.HTTPTimeout), apiclient.WithLogger(log))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	checker, err := buildChecker(ctx, cfg, api)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sess, err := session.New(store, api, checker, session.WithLogger(log), session.WithProfile(cfg.Profile))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	api.Bind(sess)

	guard, err := loadGuard(cfg)
	if err != nil {
		sess.Close()
		_ = store.Close()
		return nil, err
	}

	if err := sess.Initialize(ctx); err != nil {
		sess.Close()
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:   cfg,
		log:   log,
		out:   stdout,
		store: store,
		api:   api,
		sess:  sess,
		guard: guard,
		closer: func() {
			sess.Close()
			_ = store.Close()
		},
	}, nil
}

func openStore(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(0)
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return redis.New(redis.Config{Client: client, KeyPrefix: cfg.RedisPrefix})
	default:
		path := cfg.StorePath
		if path == "" {
			p, err := file.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		return file.New(path, file.WithLogger(log))
	}
}

// buildChecker rejects expired tokens locally before asking the API, and
// verifies signatures when a JWKS endpoint is configured.
func buildChecker(ctx context.Context, cfg *config.Config, api *apiclient.Client) (auth.ValidityChecker, error) {
	checkers := []auth.ValidityChecker{auth.NewExpiryChecker(auth.WithExpiryLeeway(cfg.TokenLeeway))}
	if cfg.JWKSURL != "" {
		jcfg := auth.DefaultJWKSConfig()
		jcfg.Leeway = cfg.TokenLeeway
		jwks, err := auth.NewJWKSChecker(ctx, cfg.JWKSURL, jcfg)
		if err != nil {
			return nil, err
		}
		checkers = append(checkers, jwks)
	}
	checkers = append(checkers, api)
	return auth.ChainCheckers(checkers...), nil
}

func loadGuard(cfg *config.Config) (*route.Guard, error) {
	if cfg.RoutesFile == "" {
		return route.NewGuard(nil), nil
	}
	f, err := os.Open(cfg.RoutesFile)
	if err != nil {
		return nil, fmt.Errorf("routes file: %w", err)
	}
	defer f.Close()
	table, err := route.LoadTable(f)
	if err != nil {
		return nil, err
	}
	return route.NewGuard(table), nil
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"login":      cmdLogin,
	"logout":     cmdLogout,
	"whoami":     cmdWhoami,
	"use":        cmdUse,
	"routes":     cmdRoutes,
	"businesses": cmdBusinesses,
	"watch":      cmdWatch,
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password (defaults to WAITLIST_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pass == "" {
		*pass = os.Getenv("WAITLIST_PASSWORD")
	}

	err := a.sess.Login(ctx, auth.Credentials{Username: *user, Password: *pass})
	if errors.Is(err, apiclient.ErrBadCredentials) {
		return errors.New("invalid username or password")
	}
	if err != nil {
		return err
	}
	st := a.sess.State()
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", *user, roleLabel(st.Role))
	if id, ok := st.ActiveBusiness(); ok {
		fmt.Fprintf(a.out, "Active business: %s\n", id)
	}
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.sess.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func cmdWhoami(_ context.Context, a *app, _ []string) error {
	st := a.sess.State()
	if !st.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if claims, err := auth.DecodeClaims(a.sess.Token()); err == nil {
		fmt.Fprintf(tw, "User:\t%s\n", claims.Username)
		if claims.ExpiresAt != nil {
			fmt.Fprintf(tw, "Expires:\t%s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
		}
	}
	fmt.Fprintf(tw, "Profile:\t%s\n", a.cfg.Profile)
	fmt.Fprintf(tw, "Role:\t%s\n", roleLabel(st.Role))
	fmt.Fprintf(tw, "Businesses:\t%s\n", listOrNone(st.BusinessScope))
	active := "(none)"
	if id, ok := st.ActiveBusiness(); ok {
		active = id
	}
	fmt.Fprintf(tw, "Active business:\t%s\n", active)
	return tw.Flush()
}

func cmdUse(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("use: expected BUSINESS_ID or -")
	}
	st := a.sess.State()
	if !st.IsAuthenticated() {
		return errors.New("not logged in")
	}

	var id *string
	if args[0] != "-" {
		id = &args[0]
		if !st.InScope(*id) {
			return fmt.Errorf("business %s is not in the session scope (%s)", *id, listOrNone(st.BusinessScope))
		}
	}
	if _, err := a.sess.SetActiveBusiness(ctx, id); err != nil {
		return err
	}
	if id == nil {
		fmt.Fprintln(a.out, "Active business cleared")
		return nil
	}
	fmt.Fprintf(a.out, "Active business: %s\n", *id)
	return nil
}

func cmdRoutes(_ context.Context, a *app, args []string) error {
	st := a.sess.State()
	if len(args) > 0 {
		d := a.guard.Resolve(st, true, route.ID(args[0]))
		if d.NoAccess {
			fmt.Fprintf(a.out, "%s -> no route reachable for %s\n", args[0], roleLabel(st.Role))
			return nil
		}
		if d.Redirect {
			fmt.Fprintf(a.out, "%s -> redirect to %s\n", args[0], d.Route)
			return nil
		}
		fmt.Fprintf(a.out, "%s -> allowed\n", d.Route)
		return nil
	}

	if !st.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not logged in: only login is reachable")
		return nil
	}
	for _, id := range a.guard.Menu(st) {
		fmt.Fprintln(a.out, id)
	}
	if a.guard.ShowBusinessSelector(st) {
		fmt.Fprintln(a.out, "(business selector shown)")
	}
	return nil
}

func cmdBusinesses(ctx context.Context, a *app, _ []string) error {
	st := a.sess.State()
	if !st.IsAuthenticated() {
		return errors.New("not logged in")
	}
	list, err := a.api.ListBusinesses(ctx)
	if err != nil {
		return err
	}

	active, _ := st.ActiveBusiness()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tTYPE")
	for _, b := range list {
		if st.Role != auth.RolePlatformAdmin && !st.InScope(b.ID) {
			continue
		}
		mark := ""
		if b.ID == active {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, b.ID, b.Name, b.Type)
	}
	return tw.Flush()
}

func cmdWatch(ctx context.Context, a *app, _ []string) error {
	w, ok := a.store.(storage.Watcher)
	if !ok {
		return fmt.Errorf("watch: the %s store cannot report changes", a.cfg.Store)
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	states, unsubscribe := a.sess.Subscribe()
	defer unsubscribe()

	printState(a.out, a.sess.State())
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := a.sess.Resync(ctx); err != nil && !errors.Is(err, session.ErrOperationInFlight) {
				a.log.WarnContext(ctx, "watch.resync_failed", slog.String("err", err.Error()))
			}
		case st, ok := <-states:
			if !ok {
				return nil
			}
			printState(a.out, st)
		}
	}
}

func printState(w io.Writer, st session.State) {
	if !st.IsAuthenticated() {
		fmt.Fprintf(w, "%s %s\n", time.Now().Format(time.TimeOnly), st.Status)
		return
	}
	active := "-"
	if id, ok := st.ActiveBusiness(); ok {
		active = id
	}
	fmt.Fprintf(w, "%s %s role=%s business=%s\n", time.Now().Format(time.TimeOnly), st.Status, roleLabel(st.Role), active)
}

func roleLabel(r auth.Role) string {
	if r == "" {
		return "no role"
	}
	return string(r)
}

func listOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}
