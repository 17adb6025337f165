package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"expensync/internal/apiclient"
	"expensync/internal/localstore"
)

func (a *App) cmdRegister(ctx context.Context, args []string) error {
	fs, format := a.flags("register", "-email E [-name N] [-password P]")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errUsage
	}
	pw, err := a.readPassword(*password)
	if err != nil {
		return err
	}
	res, err := a.client().Register(ctx, *email, *name, pw)
	if err != nil {
		return err
	}
	return a.storeSession(res, *format)
}

func (a *App) cmdLogin(ctx context.Context, args []string) error {
	fs, format := a.flags("login", "-email E [-password P]")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errUsage
	}
	pw, err := a.readPassword(*password)
	if err != nil {
		return err
	}
	res, err := a.client().Login(ctx, *email, pw)
	if err != nil {
		return err
	}
	return a.storeSession(res, *format)
}

func (a *App) storeSession(res apiclient.AuthResult, format string) error {
	s := Session{APIURL: a.cfg.APIURL, Token: res.Token, ExpiresAt: res.ExpiresAt, User: res.User}
	if err := SaveSession(a.cfg.SessionFile, s); err != nil {
		return err
	}
	return a.printUser(res.User, format)
}

func (a *App) cmdLogout(ctx context.Context, args []string) error {
	fs, format := a.flags("logout", "[-force]")
	force := fs.Bool("force", false, "log out even when expenses are still pending")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	if !*force {
		store, err := localstore.Open(ctx, a.cfg.DBPath)
		if err != nil {
			return err
		}
		n, err := store.CountPending(ctx)
		store.Close()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%d expenses are not synced yet, run: expensync sync (or logout -force)", n)
		}
	}
	if err := ClearSession(a.cfg.SessionFile); err != nil {
		return err
	}
	a.printer(*format).line("Logged out")
	return nil
}

func (a *App) cmdWhoami(ctx context.Context, args []string) error {
	fs, format := a.flags("whoami", "")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	u, err := c.Me(ctx)
	if err != nil {
		return err
	}
	return a.printUser(u, *format)
}

func (a *App) printUser(u apiclient.User, format string) error {
	return a.printer(format).print(u, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID\t%d\n", u.ID)
		fmt.Fprintf(tw, "Email\t%s\n", u.Email)
		fmt.Fprintf(tw, "Name\t%s\n", u.Name)
		fmt.Fprintf(tw, "Role\t%s\n", u.Role)
		if u.Disabled {
			fmt.Fprintf(tw, "Disabled\tyes\n")
		}
	})
}

func (a *App) cmdPushRegister(ctx context.Context, args []string) error {
	fs, format := a.flags("push-register", "-token T -platform android|ios|web")
	token := fs.String("token", "", "device push token")
	platform := fs.String("platform", "", "android, ios or web")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	if *token == "" || *platform == "" {
		fs.Usage()
		return errUsage
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	if err := c.RegisterPushToken(ctx, *token, strings.ToLower(*platform)); err != nil {
		return err
	}
	a.printer(*format).line("Device registered for notifications")
	return nil
}
