// Command pin is the thin CLI binding over the sync core: flag-based
// dispatch on os.Args[1] into add/list/sync/login/register/logout/status/
// key, wiring config, keystore, store, cursor, remote, and sync together.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/amaydixit11/pinsync/internal/config"
	"github.com/amaydixit11/pinsync/internal/core"
	"github.com/amaydixit11/pinsync/internal/crypto"
	"github.com/amaydixit11/pinsync/internal/cursor"
	"github.com/amaydixit11/pinsync/internal/keystore"
	"github.com/amaydixit11/pinsync/internal/remote"
	"github.com/amaydixit11/pinsync/internal/store"
	"github.com/amaydixit11/pinsync/internal/store/sqlite"
	"github.com/amaydixit11/pinsync/internal/sync"
)

const defaultServerURL = "https://pinsync.example.com"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "sync":
		err = cmdSync(os.Args[2:])
	case "add":
		err = cmdAdd(os.Args[2:])
	case "list":
		err = cmdList(os.Args[2:])
	case "login":
		err = cmdLogin(os.Args[2:])
	case "register":
		err = cmdRegister(os.Args[2:])
	case "logout":
		err = cmdLogout(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "key":
		err = cmdKey(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "pin: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pin: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pin - cross-device pin sync

Usage: pin <command> [options]

Commands:
  sync [--force]   Pull, reconcile, and push against the server
  add <value>      Capture a new entry bound to the current directory
  list             List live entries for the current directory
  login            Authenticate an existing account
  register         Create a new account
  logout           Clear the local session
  status           Show account and sync status
  key              Show or create the local primary encryption key
  help             Show this help`)
}

type env struct {
	paths  config.Paths
	store  *sqlite.Store
	cursor *cursor.Cursor
	remote *remote.Client
	key    crypto.Key
}

func openEnv() (*env, error) {
	paths, err := config.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolve config paths: %w", err)
	}
	key, err := keystore.LoadOrCreate(paths.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load primary key: %w", err)
	}
	db, err := sqlite.Open(paths.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	c := cursor.New(paths.LastSyncFile, paths.HostIDFile, paths.SessionFile)
	serverURL := os.Getenv("PIN_SERVER_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &env{
		paths:  paths,
		store:  db,
		cursor: c,
		remote: remote.New(serverURL),
		key:    key,
	}, nil
}

func (e *env) close() { e.store.Close() }

type stdLogger struct{ l *log.Logger }

func (s stdLogger) Printf(format string, v ...interface{}) { s.l.Printf(format, v...) }

func newLogger() sync.Logger {
	return stdLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func cmdSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	force := fs.Bool("force", false, "resync from the epoch instead of the last watermark")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if _, ok, err := e.cursor.Session(); err != nil {
		return err
	} else if !ok {
		fmt.Println("Log in first")
		return nil
	}

	orch := sync.New(e.store, e.remote, e.cursor, e.key, newLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	summary, err := orch.Sync(ctx, *force)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if summary.Conflicts > 0 {
		fmt.Printf("%d conflicts. Resolve in app before resyncing.\n", summary.Conflicts)
		return nil
	}
	fmt.Println(summary.String())
	return nil
}

func cmdAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	kindStr := fs.String("kind", "note", "entry kind: note, cmd, or todo")
	desc := fs.String("desc", "", "optional description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: pin add [--kind note|cmd|todo] [--desc TEXT] <value>")
	}
	value := strings.Join(fs.Args(), " ")

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	hostID, err := e.cursor.HostID()
	if err != nil {
		return fmt.Errorf("resolve host id: %w", err)
	}
	cwd, err := config.RootDir()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}

	kind, known := core.ParseEntryKind(*kindStr)
	if !known {
		log.Printf("pin: unknown entry kind %q, defaulting to note", *kindStr)
	}

	entry := core.NewEntry(value, cwd, nil, hostID)
	entry.Kind = kind
	if *desc != "" {
		entry.Desc = desc
	}

	ctx := context.Background()
	if err := e.store.SaveEntries(ctx, []core.Entry{entry}); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	fmt.Printf("pinned %s (%s)\n", entry.ID, entry.Kind)
	return nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	search := fs.String("search", "", "free-text search over value/desc")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	cwd, err := config.RootDir()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}

	filter := store.EntryFilter{Path: &cwd, Search: *search}
	entries, err := e.store.ListEntries(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	for _, en := range entries {
		fmt.Printf("%s\t%s\t%s\n", en.ID, en.Kind, en.Value)
	}
	return nil
}

func cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "account username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("usage: pin login --username NAME")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	hostID, err := e.cursor.HostID()
	if err != nil {
		return fmt.Errorf("resolve host id: %w", err)
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	session, err := e.remote.Login(ctx, *username, string(password), hostID.String())
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := e.cursor.SaveSession(session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Println("logged in")
	return nil
}

func cmdRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "account username")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return fmt.Errorf("usage: pin register --username NAME --email EMAIL")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	hostID, err := e.cursor.HostID()
	if err != nil {
		return fmt.Errorf("resolve host id: %w", err)
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	session, err := e.remote.Register(ctx, *username, *email, string(password), hostID.String())
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := e.cursor.SaveSession(session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Println("registered and logged in")
	return nil
}

func cmdLogout(args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	session, ok, err := e.cursor.Session()
	if err != nil {
		return err
	}
	if ok {
		e.remote.SetSession(session)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.remote.Logout(ctx); err != nil {
			log.Printf("pin: server-side logout failed, clearing local session anyway: %v", err)
		}
	}
	if err := e.cursor.ClearSession(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Println("logged out")
	return nil
}

func cmdStatus(args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := e.remote.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	fmt.Printf("server: %s (version %s)\n", health.Status, health.Version)

	session, ok, err := e.cursor.Session()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("not logged in")
		return nil
	}
	e.remote.SetSession(session)
	acct, err := e.remote.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetch account status: %w", err)
	}
	fmt.Printf("user: %s (client %s)\n", acct.Username, acct.Version)

	lastSync, err := e.cursor.LastSyncTS()
	if err != nil {
		return err
	}
	fmt.Printf("last sync: %s\n", lastSync.Format(time.RFC3339))

	conflicts, err := e.store.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		fmt.Printf("%d conflicts pending resolution\n", len(conflicts))
	}
	return nil
}

func cmdKey(args []string) error {
	fs := flag.NewFlagSet("key", flag.ExitOnError)
	create := fs.Bool("create", false, "create a new primary key if absent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	paths, err := config.Resolve()
	if err != nil {
		return err
	}

	var key crypto.Key
	if *create {
		key, err = keystore.CreateIfAbsent(paths.KeyFile)
	} else {
		key, err = keystore.Load(paths.KeyFile)
	}
	if err != nil {
		return err
	}
	encoded, err := keystore.Encode(key)
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

// readPassword reads a password from the terminal without echoing it,
// falling back to a plain line read when stdin isn't a TTY.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return password, err
}
