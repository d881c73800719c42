package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"spendly/internal/config"
	"spendly/internal/core"
	"spendly/internal/services"
	"spendly/internal/storage"
)

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// period fills a missing year or month from now.
func period(now time.Time, year, month int) (int, int) {
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	return year, month
}

func table(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func newProcessCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Materialize every due recurring template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := a.now()
			if at != "" {
				t, err := parseDate(at)
				if err != nil {
					return err
				}
				now = t
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}

			report, err := svc.Engine.ProcessAll(cmd.Context(), now)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "templates due:       %d\n", report.Templates)
			fmt.Fprintf(out, "templates advanced:  %d\n", report.Advanced)
			fmt.Fprintf(out, "entries created:     %d\n", report.Created())
			fmt.Fprintf(out, "occurrences failed:  %d\n", len(report.Failures))
			fmt.Fprintf(out, "occurrences dropped: %d\n", report.Dropped)
			for _, f := range report.Failures {
				fmt.Fprintf(out, "  %v\n", f)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "processing time (YYYY-MM-DD or RFC3339); defaults to the current time")
	return cmd
}

func newEntryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "entry", Short: "Record and list expenses and incomes"}

	var (
		typ, amount, date, category, account, description string
		tags                                              []string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an expense or income",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := core.ParseTransactionType(typ)
			if err != nil {
				return err
			}
			m, err := core.ParseMoney(amount)
			if err != nil {
				return err
			}
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			e, err := svc.Ledger.RecordEntry(cmd.Context(), services.RecordEntryInput{
				Type:        t,
				Amount:      m,
				CategoryID:  optional(category),
				AccountID:   account,
				Date:        d,
				Description: description,
				TagIDs:      tags,
			}, a.now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %s %s (%s)\n", e.Type, e.ID, e.Amount.Format(a.cfg.CurrencySymbol))
			return nil
		},
	}
	add.Flags().StringVar(&typ, "type", "expense", "expense or income")
	add.Flags().StringVar(&amount, "amount", "", "amount, e.g. 12.50")
	add.Flags().StringVar(&date, "date", "", "entry date; defaults to now")
	add.Flags().StringVar(&category, "category", "", "category id")
	add.Flags().StringVar(&account, "account", "", "account id; defaults to the default account")
	add.Flags().StringVar(&description, "description", "", "free text")
	add.Flags().StringSliceVar(&tags, "tag", nil, "tag id (repeatable)")
	_ = add.MarkFlagRequired("amount")

	var year, month int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the entries of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.services(cmd.Context()); err != nil {
				return err
			}
			y, mo := period(a.now(), year, month)
			entries, err := a.res.Store.ListEntries(cmd.Context(), y, mo)
			if err != nil {
				return err
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "DATE\tTYPE\tAMOUNT\tCATEGORY\tACCOUNT\tDESCRIPTION\tID")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Date.Format("2006-01-02"), e.Type, e.Amount.Format(a.cfg.CurrencySymbol),
					orDash(e.CategoryID), e.AccountID, e.Description, e.ID)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&year, "year", 0, "year; defaults to the current one")
	list.Flags().IntVar(&month, "month", 0, "month 1-12; defaults to the current one")

	cmd.AddCommand(add, list)
	return cmd
}

func newTemplateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "template", Short: "Manage recurring templates"}

	var typ, amount, frequency, description, category, account, start string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a recurring template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := core.ParseTransactionType(typ)
			if err != nil {
				return err
			}
			m, err := core.ParseMoney(amount)
			if err != nil {
				return err
			}
			f, err := core.ParseFrequency(frequency)
			if err != nil {
				return err
			}
			s, err := parseDate(start)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			rt, err := svc.Templates.Create(cmd.Context(), services.NewTemplateInput{
				Type:        t,
				Amount:      m,
				CategoryID:  optional(category),
				AccountID:   optional(account),
				Description: description,
				Frequency:   f,
				Start:       s,
			}, a.now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created template %s, first occurrence %s\n",
				rt.ID, rt.NextDate.Format("2006-01-02"))
			return nil
		},
	}
	add.Flags().StringVar(&typ, "type", "expense", "expense or income")
	add.Flags().StringVar(&amount, "amount", "", "amount, e.g. 12.50")
	add.Flags().StringVar(&frequency, "frequency", "monthly", "daily, weekly or monthly")
	add.Flags().StringVar(&description, "description", "", "free text")
	add.Flags().StringVar(&category, "category", "", "category id")
	add.Flags().StringVar(&account, "account", "", "account id; defaults to the default account")
	add.Flags().StringVar(&start, "start", "", "first occurrence; defaults to now")
	_ = add.MarkFlagRequired("amount")
	_ = add.MarkFlagRequired("description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List recurring templates by next occurrence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			templates, err := svc.Templates.List(cmd.Context())
			if err != nil {
				return err
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "NEXT\tFREQUENCY\tTYPE\tAMOUNT\tDESCRIPTION\tLAST RUN\tID")
			for _, rt := range templates {
				last := "never"
				if rt.LastProcessed != nil {
					last = rt.LastProcessed.Format("2006-01-02")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					rt.NextDate.Format("2006-01-02"), rt.Frequency, rt.Type,
					rt.Amount.Format(a.cfg.CurrencySymbol), rt.Description, last, rt.ID)
			}
			return w.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a recurring template; its past entries stay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Templates.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted template %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

// newReferenceCmd builds "<kind> add NAME" and "<kind> list" for
// categories, accounts and tags.
func newReferenceCmd(a *app, kind string) *cobra.Command {
	cmd := &cobra.Command{Use: kind, Short: "Manage " + kind + " reference data"}

	var color, icon string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a custom " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.services(cmd.Context()); err != nil {
				return err
			}
			var err error
			store, ctx, id := a.res.Store, cmd.Context(), core.NewID()
			switch kind {
			case "category":
				err = store.CreateCategory(ctx, core.Category{ID: id, Name: args[0], Icon: icon, Color: color, IsCustom: true})
			case "account":
				err = store.CreateAccount(ctx, core.Account{ID: id, Name: args[0], Icon: icon, Color: color, IsCustom: true})
			default:
				err = store.CreateTag(ctx, core.Tag{ID: id, Name: args[0], Color: color})
			}
			if err != nil {
				return fmt.Errorf("create %s: %w", kind, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s\n", kind, id)
			return nil
		},
	}
	add.Flags().StringVar(&color, "color", "", "hex color, e.g. #FF9800")
	if kind != "tag" {
		add.Flags().StringVar(&icon, "icon", "", "icon name")
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every " + kind,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.services(cmd.Context()); err != nil {
				return err
			}
			store, ctx := a.res.Store, cmd.Context()
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "NAME\tDEFAULT\tID")
			switch kind {
			case "category":
				cats, err := store.ListCategories(ctx)
				if err != nil {
					return err
				}
				for _, c := range cats {
					fmt.Fprintf(w, "%s\t%t\t%s\n", c.Name, c.IsDefault, c.ID)
				}
			case "account":
				accs, err := store.ListAccounts(ctx)
				if err != nil {
					return err
				}
				for _, acc := range accs {
					fmt.Fprintf(w, "%s\t%t\t%s\n", acc.Name, acc.IsDefault, acc.ID)
				}
			default:
				tags, err := store.ListTags(ctx)
				if err != nil {
					return err
				}
				for _, t := range tags {
					fmt.Fprintf(w, "%s\t-\t%s\n", t.Name, t.ID)
				}
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "delete", Short: "Delete reference data or entries with their dependents"}

	report := func(cmd *cobra.Command, what string, res services.DeletionResult) {
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (reassigned %d, nullified %d, budgets removed %d, tag links removed %d)\n",
			what, res.Reassigned, res.Nullified, res.BudgetsDeleted, res.Unlinked)
	}

	category := &cobra.Command{
		Use:   "category ID",
		Short: "Delete a category; entries, templates and budgets lose it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Policy.DeleteCategory(cmd.Context(), args[0], a.now())
			if err != nil {
				return err
			}
			report(cmd, "category "+args[0], res)
			return nil
		},
	}

	var replacement string
	account := &cobra.Command{
		Use:   "account ID",
		Short: "Delete an account, moving its entries to --replacement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Policy.DeleteAccount(cmd.Context(), args[0], replacement, a.now())
			if err != nil {
				return err
			}
			report(cmd, "account "+args[0], res)
			return nil
		},
	}
	account.Flags().StringVar(&replacement, "replacement", "", "account id receiving the entries")

	tag := &cobra.Command{
		Use:   "tag ID",
		Short: "Delete a tag and its entry links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Policy.DeleteTag(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report(cmd, "tag "+args[0], res)
			return nil
		},
	}

	var entryType string
	entry := &cobra.Command{
		Use:   "entry ID",
		Short: "Delete an expense or income and its tag links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := core.ParseTransactionType(entryType)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Policy.DeleteEntry(cmd.Context(), args[0], t)
			if err != nil {
				return err
			}
			report(cmd, t.String()+" "+args[0], res)
			return nil
		},
	}
	entry.Flags().StringVar(&entryType, "type", "expense", "expense or income")

	cmd.AddCommand(category, account, tag, entry)
	return cmd
}

func newBudgetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "budget", Short: "Set and check monthly budgets"}

	var (
		category, amount string
		year, month      int
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Create a budget for a category, or an overall one without --category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := core.ParseMoney(amount)
			if err != nil {
				return err
			}
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			y, mo := period(a.now(), year, month)
			b, crossings, err := svc.Budgets.SetBudget(cmd.Context(), optional(category), m, y, mo)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "budget %s set to %s for %04d-%02d\n", b.ID, b.Amount.Format(a.cfg.CurrencySymbol), y, mo)
			for _, c := range crossings {
				fmt.Fprintf(out, "  already at %s%% (%s threshold)\n", c.Progress.Percent(), c.Threshold)
			}
			return nil
		},
	}
	set.Flags().StringVar(&amount, "amount", "", "monthly cap, e.g. 400")
	_ = set.MarkFlagRequired("amount")

	check := &cobra.Command{
		Use:   "check",
		Short: "Show spending against a budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			y, mo := period(a.now(), year, month)
			st, err := svc.Budgets.Status(cmd.Context(), optional(category), y, mo)
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("no budget for %04d-%02d", y, mo)
			}
			if err != nil {
				return err
			}
			sym := a.cfg.CurrencySymbol
			fmt.Fprintf(cmd.OutOrStdout(), "%04d-%02d: spent %s of %s (%s%%)\n",
				y, mo, st.Spent.Format(sym), st.Budget.Amount.Format(sym), st.Progress.Percent())
			return nil
		},
	}

	for _, c := range []*cobra.Command{set, check} {
		c.Flags().StringVar(&category, "category", "", "category id; omit for the overall budget")
		c.Flags().IntVar(&year, "year", 0, "year; defaults to the current one")
		c.Flags().IntVar(&month, "month", 0, "month 1-12; defaults to the current one")
	}

	cmd.AddCommand(set, check)
	return cmd
}

func newOverviewCmd(a *app) *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Summarize a month by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.services(cmd.Context()); err != nil {
				return err
			}
			y, mo := period(a.now(), year, month)
			ov, err := a.res.Store.ReadMonthOverview(cmd.Context(), y, mo)
			if err != nil {
				return err
			}
			sym := a.cfg.CurrencySymbol
			w := table(cmd.OutOrStdout())
			fmt.Fprintf(w, "%04d-%02d\n", ov.Year, ov.Month)
			for _, c := range ov.ByCategory {
				fmt.Fprintf(w, "  %s\t%s\n", c.Name, c.Amount.Format(sym))
			}
			fmt.Fprintf(w, "expenses\t%s\n", ov.TotalExpense.Format(sym))
			fmt.Fprintf(w, "incomes\t%s\n", ov.TotalIncome.Format(sym))
			fmt.Fprintf(w, "net\t%s\n", ov.Net().Format(sym))
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year; defaults to the current one")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12; defaults to the current one")
	return cmd
}

func newParseAmountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse-amount AMOUNT",
		Short: "Show how an amount string is read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := core.ParseMoney(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d minor units\n", m, m.Cents)
			return nil
		},
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "schema", Short: "Inspect the SQLite schema"}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.DataBackend != config.BackendSQLite {
				return fmt.Errorf("schema status needs the sqlite backend, have %q", a.cfg.DataBackend)
			}
			version, dirty, err := storage.SchemaVersion(a.cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	})
	return cmd
}
