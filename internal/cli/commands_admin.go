package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"expensync/internal/apiclient"
)

func (a *App) cmdAdmin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.adminUsage()
		return errUsage
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "users":
		return a.adminUsers(ctx, rest)
	case "role":
		return a.adminRole(ctx, rest)
	case "disable":
		return a.adminSetDisabled(ctx, "disable", true, rest)
	case "enable":
		return a.adminSetDisabled(ctx, "enable", false, rest)
	case "delete":
		return a.adminDelete(ctx, rest)
	case "dashboard":
		return a.adminDashboard(ctx, rest)
	case "broadcast":
		return a.adminBroadcast(ctx, rest)
	}
	fmt.Fprintf(a.stderr, "unknown admin command %q\n", sub)
	a.adminUsage()
	return errUsage
}

func (a *App) adminUsage() {
	fmt.Fprintln(a.stderr, `usage: expensync admin <command>
  users                     list accounts
  role USER_ID user|admin   change a role
  disable USER_ID           block an account
  enable USER_ID            unblock an account
  delete USER_ID            delete an account and its expenses
  dashboard                 totals across all users
  broadcast -title T -body B  notify every registered device`)
}

// userArg parses the leading USER_ID argument and the flags after it.
func (a *App) userArg(name string, extra int, args []string) (int64, []string, *string, error) {
	fs, format := a.flags("admin "+name, "USER_ID"+strings.Repeat(" VALUE", extra))
	if len(args) < 1+extra {
		fs.Usage()
		return 0, nil, nil, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, nil, nil, fmt.Errorf("invalid user id %q", args[0])
	}
	if err := parse(fs, format, args[1+extra:]); err != nil {
		return 0, nil, nil, err
	}
	return id, args[1 : 1+extra], format, nil
}

func (a *App) adminUsers(ctx context.Context, args []string) error {
	fs, format := a.flags("admin users", "")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	users, err := c.AdminListUsers(ctx)
	if err != nil {
		return err
	}
	return a.printer(*format).print(users, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tDISABLED\tLAST LOGIN")
		for _, u := range users {
			last := "-"
			if u.LastLoginAt != nil {
				last = u.LastLoginAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, yesNo(u.Disabled), last)
		}
	})
}

func (a *App) adminRole(ctx context.Context, args []string) error {
	id, values, format, err := a.userArg("role", 1, args)
	if err != nil {
		return err
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	u, err := c.AdminSetRole(ctx, id, values[0])
	if err != nil {
		return err
	}
	return a.printUser(u, *format)
}

func (a *App) adminSetDisabled(ctx context.Context, name string, disabled bool, args []string) error {
	id, _, format, err := a.userArg(name, 0, args)
	if err != nil {
		return err
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	u, err := c.AdminSetDisabled(ctx, id, disabled)
	if err != nil {
		return err
	}
	return a.printUser(u, *format)
}

func (a *App) adminDelete(ctx context.Context, args []string) error {
	id, _, format, err := a.userArg("delete", 0, args)
	if err != nil {
		return err
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	if err := c.AdminDeleteUser(ctx, id); err != nil {
		return err
	}
	a.printer(*format).line("Deleted user %d", id)
	return nil
}

func (a *App) adminDashboard(ctx context.Context, args []string) error {
	fs, format := a.flags("admin dashboard", "")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	d, err := c.AdminDashboard(ctx)
	if err != nil {
		return err
	}
	return a.printer(*format).print(d, func(tw *tabwriter.Writer) {
		printDashboard(tw, d)
	})
}

func printDashboard(tw *tabwriter.Writer, d apiclient.Dashboard) {
	fmt.Fprintf(tw, "Users\t%d\n", d.Users)
	fmt.Fprintf(tw, "Admins\t%d\n", d.AdminUsers)
	fmt.Fprintf(tw, "Disabled\t%d\n", d.DisabledUsers)
	fmt.Fprintf(tw, "Push devices\t%d\n", d.PushTokens)
	fmt.Fprintln(tw)
	printSummary(tw, d.Expenses)
}

func (a *App) adminBroadcast(ctx context.Context, args []string) error {
	fs, format := a.flags("admin broadcast", "-title T -body B")
	title := fs.String("title", "", "notification title")
	body := fs.String("body", "", "notification text")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	if *title == "" || *body == "" {
		fs.Usage()
		return errUsage
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	if err := c.AdminBroadcast(ctx, *title, *body); err != nil {
		return err
	}
	a.printer(*format).line("Notification queued")
	return nil
}
