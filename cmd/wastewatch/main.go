// wastewatch is the terminal client for the food-waste dashboard. It
// drives the same core the browser UI does: the session manager backed
// by durable storage, the route guard, the REST client, and the live
// push channel.
//
// Usage:
//
//	wastewatch login -email <email> -password <password>
//	wastewatch whoami
//	wastewatch links
//	wastewatch watch
//	wastewatch logout
//
// Configuration (environment):
//
//	API_URL    REST collaborator base URL   (default http://localhost:3000)
//	PUSH_URL   push endpoint                (default ws://localhost:3000/ws)
//	STORE_PATH durable storage location     (default wastewatch.db)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/danti/wastewatch/internal/api"
	"github.com/danti/wastewatch/internal/dashboard"
	"github.com/danti/wastewatch/internal/guard"
	"github.com/danti/wastewatch/internal/localstore"
	"github.com/danti/wastewatch/internal/model"
	"github.com/danti/wastewatch/internal/session"
)

// app is the composition root: every command gets the same wired set of
// session, guard, and API client.
type app struct {
	log     *slog.Logger
	sess    *session.Manager
	guard   *guard.Guard
	client  *api.Client
	view    *dashboard.View
	pushURL string
}

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
	}))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: wastewatch <login|logout|whoami|links|watch> [flags]")
		os.Exit(2)
	}

	apiURL := getenv("API_URL", "http://localhost:3000")
	pushURL := getenv("PUSH_URL", "ws://localhost:3000/ws")
	storePath := getenv("STORE_PATH", "wastewatch.db")

	store, err := localstore.Open(storePath)
	if err != nil {
		logger.Error("open local store", "path", storePath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	a := &app{log: logger, pushURL: pushURL}
	// The reset hook is the logout guarantee: when the session is
	// cleared, all in-memory view state goes with it.
	a.sess = session.New(store, func() {
		if a.view != nil {
			a.view.Reset()
		}
	})
	a.guard = guard.New(a.sess, nil)
	a.client = api.New(apiURL, a.sess, nil)
	a.view = dashboard.New(a.sess, a.client, pushURL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "login":
		err = a.login(ctx, os.Args[2:])
	case "logout":
		err = a.logout()
	case "whoami":
		err = a.whoami()
	case "links":
		err = a.links()
	case "watch":
		err = a.watch(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		logger.Error(os.Args[1], "err", err)
		os.Exit(1)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)
	if *email == "" || *password == "" {
		return fmt.Errorf("both -email and -password are required")
	}

	resp, err := a.client.Login(ctx, model.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	// The login flow is the only writer of the credential.
	if err := a.sess.StoreCredential(resp.Token); err != nil {
		return err
	}

	role, _ := a.sess.Role()
	a.log.Info("logged in", "user", resp.User.Username, "role", role)
	fmt.Printf("landing route: %s\n", guard.RoleLanding(role))
	return nil
}

func (a *app) logout() error {
	a.sess.Clear()
	a.log.Info("logged out")
	return nil
}

func (a *app) whoami() error {
	claims, ok := a.sess.Claims()
	if !ok {
		fmt.Println("not logged in")
		return nil
	}
	fmt.Printf("user:    %s\nrole:    %s\nexpires: %d\n",
		claims.UserID, claims.Role, claims.Expiration())
	return nil
}

func (a *app) links() error {
	role, ok := a.sess.Role()
	if !ok {
		fmt.Println("not logged in")
		return nil
	}
	for _, l := range a.guard.VisibleLinks(role) {
		fmt.Printf("%-16s %s\n", l.Label, l.Path)
	}
	return nil
}

// watch mounts a dashboard view and tails live events until interrupt.
// It goes through the guard first, exactly like a navigation would.
func (a *app) watch(ctx context.Context) error {
	role, _ := a.sess.Role()
	decision := a.guard.Resolve(guard.RoleLanding(role))
	if decision.Notice != "" {
		fmt.Println(decision.Notice)
	}
	if !decision.Render {
		fmt.Printf("redirected to %s — log in first\n", decision.RedirectTo)
		return nil
	}

	a.view.OnNotification = func(n model.Notification) {
		a.log.Info("notification", "title", n.Title, "description", n.Description,
			"unread", a.view.Notifications.UnreadCount())
	}
	a.view.OnRecord = func(rec model.FoodWasteRecord) {
		a.log.Info("record update", "id", rec.ID, "status", rec.Status,
			"records", a.view.Records.Len())
	}

	if err := a.view.Mount(ctx); err != nil {
		return err
	}
	defer a.view.Unmount()

	a.log.Info("dashboard mounted",
		"records", a.view.Records.Len(),
		"unread", a.view.Notifications.UnreadCount())

	<-ctx.Done()
	a.log.Info("shutting down")
	return nil
}

// getenv returns the environment variable k, or fallback when unset.
func getenv(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}
