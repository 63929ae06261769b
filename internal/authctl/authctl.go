// Package authctl implements the operator commands behind cmd/authctl.
package authctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/aussiebroadwan/stocktake/internal/auth/app"
	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/service"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
)

const usage = `usage: authctl <command> [flags]

commands:
  migrate                                apply database migrations
  create-user -username U -email E [-admin]
                                         create a user, prompting for the password
  deactivate-user -id ID                 deactivate a user and revoke their sessions
`

// ErrUsage is returned for unknown commands or bad flags.
var ErrUsage = errors.New("authctl: invalid usage")

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal reports whether fd is an interactive terminal.
var isTerminal = term.IsTerminal

// CLI runs commands against the configured store.
type CLI struct {
	Config app.AdminConfig
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// OpenStore defaults to app.OpenStore.
	OpenStore func(ctx context.Context, cfg app.Database) (store.Store, error)

	stdin *bufio.Reader
}

// Run dispatches args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.Stderr, usage)
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		return c.migrate(ctx, args[1:])
	case "create-user":
		return c.createUser(ctx, args[1:])
	case "deactivate-user":
		return c.deactivateUser(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(c.Stdout, usage)
		return nil
	default:
		fmt.Fprintf(c.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return ErrUsage
	}
}

func (c *CLI) open(ctx context.Context) (store.Store, error) {
	open := c.OpenStore
	if open == nil {
		open = app.OpenStore
	}
	return open(ctx, c.Config.Database)
}

func (c *CLI) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	return fs
}

func (c *CLI) migrate(ctx context.Context, args []string) error {
	if err := c.flags("migrate").Parse(args); err != nil {
		return ErrUsage
	}

	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Fprintf(c.Stdout, "migrations applied (%s)\n", c.Config.Database.Driver)
	return nil
}

func (c *CLI) createUser(ctx context.Context, args []string) error {
	fs := c.flags("create-user")
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "email address")
	admin := fs.Bool("admin", false, "grant the admin role")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if *username == "" || *email == "" {
		fmt.Fprintln(c.Stderr, "create-user: -username and -email are required")
		return ErrUsage
	}

	password, err := c.promptPassword()
	if err != nil {
		return err
	}

	roles := []string{domain.RoleStaff}
	if *admin {
		roles = append(roles, domain.RoleAdmin)
	}

	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	users := &service.UserService{Store: st, Hasher: cryptox.Hasher{Pepper: c.Config.PasswordPepper}}
	u, err := users.CreateUser(ctx, service.RegisterInput{
		Username: *username,
		Email:    *email,
		Password: password,
		Roles:    roles,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(c.Stdout, "created user %s (%s) roles=%s\n", u.ID, u.Username, strings.Join(u.Roles, ","))
	return nil
}

func (c *CLI) deactivateUser(ctx context.Context, args []string) error {
	fs := c.flags("deactivate-user")
	id := fs.String("id", "", "user id")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if *id == "" {
		fmt.Fprintln(c.Stderr, "deactivate-user: -id is required")
		return ErrUsage
	}

	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	users := &service.UserService{Store: st}
	if err := users.DeactivateUser(ctx, *id); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}

	fmt.Fprintf(c.Stdout, "deactivated user %s\n", *id)
	return nil
}

// promptPassword reads the password twice without echo on a terminal, or
// a single line from piped input.
func (c *CLI) promptPassword() (string, error) {
	if f, ok := c.Stdin.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(c.Stdout, "Enter password: ")
		first, err := readPassword(int(f.Fd()))
		fmt.Fprintln(c.Stdout)
		if err != nil {
			return "", err
		}
		fmt.Fprint(c.Stdout, "Repeat password: ")
		second, err := readPassword(int(f.Fd()))
		fmt.Fprintln(c.Stdout)
		if err != nil {
			return "", err
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
		return string(first), nil
	}

	if c.stdin == nil {
		c.stdin = bufio.NewReader(c.Stdin)
	}
	line, err := c.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
