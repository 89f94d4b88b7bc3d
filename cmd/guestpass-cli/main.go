// Command guestpass-cli is a terminal client for a guestpass server.
// Customers see a live remaining-time badge; an admin lands directly in
// the roster panel, which is the admin's entire session surface.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/karstlabs/guestpass/internal/client"
	"github.com/karstlabs/guestpass/internal/logging"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	serverURL := flag.String("server", envOr("GUESTPASS_SERVER", "http://localhost:8787"), "guestpass server base URL")
	prefsPath := flag.String("prefs", "", "preferences file (default ~/.guestpass.json)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger := logging.Setup(*logLevel, "text")

	path := *prefsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot locate home directory:", err)
			os.Exit(1)
		}
		path = filepath.Join(home, ".guestpass.json")
	}
	prefs, err := client.NewPrefs(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cannot load preferences:", err)
		os.Exit(1)
	}

	app := &app{
		prefs:  prefs,
		reader: bufio.NewReader(os.Stdin),
	}

	api := client.NewAPI(*serverURL)
	clock := client.NewClock()
	app.session = client.NewSessionController(api, clock, prefs, logger)
	app.roster = client.NewRosterController(api, clock, logger)
	app.session.AttachRoster(app.roster)
	app.roster.SetConfirm(app.confirm)
	app.roster.SetOnClose(func() {
		app.session.Logout(context.Background())
	})
	app.session.OnBadge(func(label string) {
		fmt.Printf("\r\033[K[%s]\n", label)
	})

	app.run()
}

type app struct {
	session *client.SessionController
	roster  *client.RosterController
	prefs   *client.Prefs
	reader  *bufio.Reader
}

func (a *app) run() {
	ctx := context.Background()
	a.session.FetchAuthStatus(ctx)

	for {
		switch a.session.View() {
		case client.ViewUnauthenticated:
			if !a.loginPrompt(ctx) {
				return
			}
		case client.ViewAdmin:
			if !a.adminShell(ctx) {
				return
			}
		default:
			if !a.customerShell(ctx) {
				return
			}
		}
	}
}

func (a *app) loginPrompt(ctx context.Context) bool {
	username, err := a.prompt("Username (blank to quit)")
	if err != nil || username == "" {
		return false
	}
	fmt.Print("Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cannot read password:", err)
		return false
	}

	if err := a.session.Login(ctx, username, string(pw)); err != nil {
		fmt.Println(err)
		if n := a.session.Attempts(); n > 0 {
			fmt.Printf("Failed attempts: %d\n", n)
		}
	}
	return true
}

func (a *app) customerShell(ctx context.Context) bool {
	user := a.session.CurrentUser()
	if user == nil {
		return true
	}
	fmt.Printf("Signed in as @%s (display name: %s)\n", user.Username, a.prefs.DisplayName(user.Username))
	fmt.Println("Commands: name <display name>, logout, quit")

	for a.session.View() == client.ViewCustomer {
		line, err := a.prompt("")
		if err != nil {
			return false
		}
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "name":
			if err := a.prefs.SetDisplayName(user.Username, rest); err != nil {
				fmt.Println("Could not save display name:", err)
				continue
			}
			fmt.Println("Display name:", a.prefs.DisplayName(user.Username))
		case "logout":
			a.session.Logout(ctx)
		case "quit", "exit":
			return false
		case "":
			a.session.FetchAuthStatus(ctx)
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
	return true
}

func (a *app) adminShell(ctx context.Context) bool {
	if err := a.roster.Open(ctx); err != nil {
		fmt.Println("Could not load roster:", err)
	}
	fmt.Println("Admin panel. Commands: list, search <term>, add <user> <pass> <minutes>,")
	fmt.Println("  extend <user> <days>, shorten <user> <days>, passwd <user> <password>,")
	fmt.Println("  delete <user>, purge, close, quit")

	for a.session.View() == client.ViewAdmin {
		line, err := a.prompt("admin")
		if err != nil {
			a.roster.Close()
			return false
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			a.printRoster()
			continue
		}
		switch fields[0] {
		case "list":
			if err := a.roster.Load(ctx); err != nil {
				fmt.Println("Could not refresh roster:", err)
			}
			a.printRoster()
		case "search":
			a.roster.Filter(strings.Join(fields[1:], " "))
			a.printRoster()
		case "add":
			a.addCustomer(ctx, fields[1:])
		case "extend", "shorten":
			a.adjustDays(ctx, fields[0], fields[1:])
		case "passwd":
			if len(fields) != 3 {
				fmt.Println("Usage: passwd <user> <password>")
				continue
			}
			a.withAccount(fields[1], func(id string) {
				if err := a.roster.ResetPassword(ctx, id, fields[2]); err != nil {
					fmt.Println(err)
					return
				}
				fmt.Println("Password updated.")
			})
		case "delete":
			if len(fields) != 2 {
				fmt.Println("Usage: delete <user>")
				continue
			}
			a.withAccount(fields[1], func(id string) {
				if err := a.roster.Delete(ctx, id); err != nil {
					fmt.Println(err)
				}
			})
		case "purge":
			// The purge may succeed even when the follow-up roster
			// reload fails, so the summary prints either way.
			msg, err := a.roster.DeleteExpired(ctx)
			if msg != "" {
				fmt.Println(msg)
			}
			if err != nil {
				fmt.Println(err)
			}
		case "close":
			// Closing the panel signs the admin out.
			a.roster.Close()
		case "quit", "exit":
			a.roster.Close()
			return false
		default:
			fmt.Println("Unknown command:", fields[0])
		}
	}
	return true
}

func (a *app) addCustomer(ctx context.Context, args []string) {
	if len(args) != 3 {
		fmt.Println("Usage: add <user> <pass> <minutes>")
		return
	}
	minutes, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Println("Invalid duration selected")
		return
	}
	if err := a.roster.Create(ctx, args[0], args[1], minutes); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("Customer created.")
}

func (a *app) adjustDays(ctx context.Context, verb string, args []string) {
	if len(args) != 2 {
		fmt.Printf("Usage: %s <user> <days>\n", verb)
		return
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Println("Please enter a valid positive number.")
		return
	}
	a.withAccount(args[0], func(id string) {
		var opErr error
		if verb == "extend" {
			opErr = a.roster.Extend(ctx, id, days)
		} else {
			opErr = a.roster.RemoveDays(ctx, id, days)
		}
		if opErr != nil {
			fmt.Println(opErr)
		}
	})
}

// withAccount resolves a username against the cached roster and runs fn
// with the matching account id.
func (a *app) withAccount(username string, fn func(id string)) {
	needle := strings.ToLower(strings.TrimSpace(username))
	for _, acct := range a.roster.Accounts() {
		if strings.ToLower(acct.Username) == needle {
			fn(acct.ID)
			return
		}
	}
	fmt.Println("No such customer:", username)
}

func (a *app) printRoster() {
	view := a.roster.Render(time.Now())
	fmt.Printf("Total %d | Active %d | Waiting %d | Expiring %d\n",
		view.Stats.Total, view.Stats.Active, view.Stats.Waiting, view.Stats.Expiring)
	if view.EmptyMessage != "" {
		fmt.Println(view.EmptyMessage)
		return
	}
	for _, row := range view.Rows {
		marker := ""
		if row.ExpiringSoon {
			marker = " [expiring]"
		}
		fmt.Printf("  %-20s %-18s %-22s %s%s\n",
			row.Account.Username, row.Status, "Time left: "+row.TimeLeft, row.Duration, marker)
	}
}

func (a *app) prompt(label string) (string, error) {
	if label != "" {
		fmt.Printf("%s> ", label)
	} else {
		fmt.Print("> ")
	}
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) confirm(promptText string) bool {
	fmt.Printf("%s [y/N] ", promptText)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
