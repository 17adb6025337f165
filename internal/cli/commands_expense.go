package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"expensync/internal/apiclient"
	"expensync/internal/core"
	"expensync/internal/localstore"
	"expensync/internal/offline"
	"expensync/internal/worker"
)

const dateLayout = "2006-01-02"

type draftFlags struct {
	category    *string
	description *string
	amount      *string
	date        *string
	photo       *string
	lat         *string
	lon         *string
	address     *string
}

func addDraftFlags(fs *flag.FlagSet) draftFlags {
	return draftFlags{
		category:    fs.String("category", "", "category, e.g. Food"),
		description: fs.String("description", "", "what the expense was for"),
		amount:      fs.String("amount", "", "amount, e.g. 12.50 or 12,50"),
		date:        fs.String("date", "", "day of the expense, YYYY-MM-DD (default today)"),
		photo:       fs.String("photo", "", "receipt photo to attach"),
		lat:         fs.String("lat", "", "latitude"),
		lon:         fs.String("lon", "", "longitude"),
		address:     fs.String("address", "", "address of the place"),
	}
}

// apply overwrites the fields of d whose flags were given.
func (f draftFlags) apply(fs *flag.FlagSet, d *offline.Draft) error {
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if set["category"] {
		d.Category = strings.TrimSpace(*f.category)
	}
	if set["description"] {
		d.Description = strings.TrimSpace(*f.description)
	}
	if set["amount"] {
		cents, err := core.ParseDecimalToCents(*f.amount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", *f.amount, err)
		}
		d.Amount = core.Money{Cents: cents}
	}
	if set["date"] {
		day, err := core.ParseDay(*f.date)
		if err != nil {
			return fmt.Errorf("invalid date %q: use YYYY-MM-DD", *f.date)
		}
		d.Date = day
	}
	if set["photo"] {
		// Queued rows are uploaded later, possibly from another directory.
		path, err := filepath.Abs(*f.photo)
		if err != nil {
			return fmt.Errorf("photo: %w", err)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("photo: %w", err)
		}
		d.PhotoPath = path
	}

	if set["lat"] || set["lon"] || set["address"] {
		loc := core.Location{}
		if d.Location != nil {
			loc = *d.Location
		} else if !set["lat"] || !set["lon"] {
			return errors.New("a location needs both -lat and -lon")
		}
		if set["lat"] {
			v, err := strconv.ParseFloat(*f.lat, 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q", *f.lat)
			}
			loc.Latitude = v
		}
		if set["lon"] {
			v, err := strconv.ParseFloat(*f.lon, 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q", *f.lon)
			}
			loc.Longitude = v
		}
		if set["address"] {
			loc.Address = strings.TrimSpace(*f.address)
		}
		d.Location = &loc
	}
	return nil
}

func (a *App) cmdAdd(ctx context.Context, args []string) error {
	fs, format := a.flags("add", "-category C -description D -amount 12.34 [-date YYYY-MM-DD] [-photo FILE] [-lat N -lon N] [-address A]")
	df := addDraftFlags(fs)
	if err := parse(fs, format, args); err != nil {
		return err
	}
	d := offline.Draft{Date: core.Day(a.now())}
	if err := df.apply(fs, &d); err != nil {
		return err
	}

	e, err := a.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	e.observer.Check(ctx)

	res, err := e.repo.Add(ctx, d)
	if err != nil {
		return err
	}
	p := a.printer(*format)
	if *format != FormatTable {
		return p.print(res, nil)
	}
	if res.Queued {
		p.line("Saved offline as %s, it will be uploaded when the server is reachable", res.Item.ClientID)
		return nil
	}
	p.line("Saved expense %d: %s %s", res.Item.RemoteID, res.Item.AmountText, res.Item.Description)
	return nil
}

func listFlags(fs *flag.FlagSet) (from, to, category *string) {
	return fs.String("from", "", "first day, YYYY-MM-DD"),
		fs.String("to", "", "last day, YYYY-MM-DD"),
		fs.String("category", "", "only this category")
}

func (a *App) cmdList(ctx context.Context, args []string) error {
	fs, format := a.flags("list", "[-from D] [-to D] [-category C] [-limit N]")
	from, to, category := listFlags(fs)
	limit := fs.Int("limit", 0, "maximum number of server rows")
	if err := parse(fs, format, args); err != nil {
		return err
	}

	e, err := a.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	e.observer.Check(ctx)

	res, err := e.repo.List(ctx, apiclient.ListOptions{From: *from, To: *to, Category: *category, Limit: *limit})
	if err != nil {
		return err
	}
	if res.Offline && *format == FormatTable {
		fmt.Fprintln(a.stderr, "Server unreachable, showing pending expenses only")
	}
	return a.printer(*format).print(res.Items, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION\tPHOTO\tSTATUS")
		for _, it := range res.Items {
			id := strconv.FormatInt(it.RemoteID, 10)
			status := "synced"
			if it.Pending {
				id = it.ClientID
				status = "pending"
				if it.LastError != "" {
					status = "pending (last error: " + it.LastError + ")"
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", id, it.Date, it.Category, it.AmountText, it.Description, yesNo(it.HasPhoto), status)
		}
	})
}

func (a *App) cmdEdit(ctx context.Context, args []string) error {
	const usage = "REF [-category C] [-description D] [-amount A] [-date D] [-photo FILE] [-lat N -lon N] [-address A]"
	fs, format := a.flags("edit", usage)
	df := addDraftFlags(fs)
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fs.Usage()
		return errUsage
	}
	ref := args[0]
	if err := parse(fs, format, args[1:]); err != nil {
		return err
	}

	e, err := a.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := a.currentDraft(ctx, e, ref)
	if err != nil {
		return err
	}
	if err := df.apply(fs, &d); err != nil {
		return err
	}
	item, err := e.repo.Update(ctx, ref, d)
	if err != nil {
		return err
	}
	if *format != FormatTable {
		return a.printer(*format).print(item, nil)
	}
	a.printer(*format).line("Updated %s: %s %s", ref, item.AmountText, item.Description)
	return nil
}

// currentDraft loads the stored values of ref so edit only changes the
// fields given on the command line. The photo is never copied.
func (a *App) currentDraft(ctx context.Context, e *env, ref string) (offline.Draft, error) {
	p, err := e.store.Get(ctx, ref)
	if err == nil && !p.Uploaded {
		return offline.Draft{Category: p.Category, Description: p.Description, Amount: p.Amount, Date: p.Date, Location: p.Location}, nil
	}
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return offline.Draft{}, err
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return offline.Draft{}, core.ErrNotFound
	}
	remote, err := e.api.GetExpense(ctx, id)
	if err != nil {
		return offline.Draft{}, err
	}
	day, err := core.ParseDay(remote.Date)
	if err != nil {
		return offline.Draft{}, err
	}
	d := offline.Draft{Category: remote.Category, Description: remote.Description, Amount: core.Money{Cents: remote.AmountCents}, Date: day}
	if remote.Location != nil {
		d.Location = &core.Location{Latitude: remote.Location.Latitude, Longitude: remote.Location.Longitude, Address: remote.Location.Address}
	}
	return d, nil
}

func (a *App) cmdDelete(ctx context.Context, args []string) error {
	fs, format := a.flags("delete", "REF")
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fs.Usage()
		return errUsage
	}
	if err := parse(fs, format, args[1:]); err != nil {
		return err
	}
	e, err := a.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.repo.Delete(ctx, args[0]); err != nil {
		return err
	}
	a.printer(*format).line("Deleted %s", args[0])
	return nil
}

func (a *App) cmdSummary(ctx context.Context, args []string) error {
	fs, format := a.flags("summary", "[-from D] [-to D] [-category C]")
	from, to, category := listFlags(fs)
	if err := parse(fs, format, args); err != nil {
		return err
	}
	c, _, err := a.authedClient()
	if err != nil {
		return err
	}
	s, err := c.Summary(ctx, apiclient.ListOptions{From: *from, To: *to, Category: *category})
	if err != nil {
		return err
	}
	return a.printer(*format).print(s, func(tw *tabwriter.Writer) {
		printSummary(tw, s)
	})
}

func printSummary(tw *tabwriter.Writer, s apiclient.Summary) {
	fmt.Fprintln(tw, "CATEGORY\tCOUNT\tAMOUNT")
	for _, c := range s.ByCategory {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Name, c.Count, c.Amount)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%s\n", s.Count, s.Total)
}

func (a *App) cmdSync(ctx context.Context, args []string) error {
	fs, format := a.flags("sync", "")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	e, err := a.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if !e.observer.Check(ctx) {
		return fmt.Errorf("cannot reach the server at %s, pending expenses stay queued", a.cfg.APIURL)
	}
	rep, err := e.worker(a).Drain(ctx)
	if err != nil {
		return err
	}
	left, err := e.store.CountPending(ctx)
	if err != nil {
		return err
	}
	return a.printer(*format).print(syncResult{Report: rep, Pending: left}, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Uploaded\t%d\n", rep.Uploaded)
		fmt.Fprintf(tw, "Failed\t%d\n", rep.Failed)
		fmt.Fprintf(tw, "Still pending\t%d\n", left)
	})
}

type syncResult struct {
	Report  worker.Report `json:"report" yaml:"report"`
	Pending int           `json:"pending" yaml:"pending"`
}

func (a *App) cmdPending(ctx context.Context, args []string) error {
	fs, format := a.flags("pending", "")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	store, err := localstore.Open(ctx, a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	all, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	rows := make([]pendingJSON, 0, len(all))
	for _, p := range all {
		if !p.Uploaded {
			rows = append(rows, toPendingJSON(p))
		}
	}
	return a.printer(*format).print(rows, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "CLIENT ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION\tLAST ERROR")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ClientID, r.Date, r.Category, r.Amount, r.Description, r.LastError)
		}
	})
}

type pendingJSON struct {
	ClientID    string `json:"client_id" yaml:"client_id"`
	Date        string `json:"date" yaml:"date"`
	Category    string `json:"category" yaml:"category"`
	Description string `json:"description" yaml:"description"`
	Amount      string `json:"amount" yaml:"amount"`
	PhotoPath   string `json:"photo_path,omitempty" yaml:"photo_path,omitempty"`
	LastError   string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

func toPendingJSON(p localstore.Pending) pendingJSON {
	return pendingJSON{
		ClientID:    p.ClientID,
		Date:        p.Date.Format(dateLayout),
		Category:    p.Category,
		Description: p.Description,
		Amount:      p.Amount.String(),
		PhotoPath:   p.PhotoPath,
		LastError:   p.LastError,
	}
}

func (a *App) cmdDaemon(ctx context.Context, args []string) error {
	fs, format := a.flags("daemon", "")
	if err := parse(fs, format, args); err != nil {
		return err
	}
	e, err := a.openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	obsDone := make(chan struct{})
	go func() {
		e.observer.Run(ctx)
		close(obsDone)
	}()

	a.logger.Info("Client daemon started", "api_url", a.cfg.APIURL, "schedule", a.cfg.SyncSchedule)
	err = e.worker(a).Run(ctx)
	<-obsDone
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
