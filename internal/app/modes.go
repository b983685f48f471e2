package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mingfai/stockledger/internal/domain"
	"github.com/mingfai/stockledger/internal/syncer"
)

// OnceMode performs a single refresh and prints a dataset summary. Stale data
// is reported but not treated as a failure.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	ds, err := deps.Ledger.Refresh(ctx, false)
	if err != nil && !errors.Is(err, domain.ErrStaleData) {
		return fmt.Errorf("app: once: %w", err)
	}

	catalog := deps.Ledger.Catalog()
	parties := deps.Ledger.Parties()

	fmt.Printf("version:   %s%s\n", ds.Version, staleSuffix(ds))
	fmt.Printf("records:   %d\n", len(ds.Records))
	fmt.Printf("products:  %d\n", len(catalog))
	fmt.Printf("suppliers: %d\n", len(parties.Suppliers))
	fmt.Printf("customers: %d\n", len(parties.Customers))
	return nil
}

// SyncMode forces a full re-fetch and rebuild, for cron-style invocations
// that want the durable snapshot brought up to date unconditionally.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	ds, err := deps.Ledger.Refresh(ctx, true)
	if err != nil {
		return fmt.Errorf("app: sync: %w", err)
	}
	a.logger.InfoContext(ctx, "sync complete",
		slog.String("version", string(ds.Version)),
		slog.Int("records", len(ds.Records)),
	)
	return nil
}

const serveHelp = "commands: refresh | catalog | parties | history <product> | search <term> | " +
	"gen in|out [YYYY-MM-DD] | validate <order-number> | " +
	"submit <order-number> <counterparty> <product> <unit> <qty> <amount> | " +
	"login [name password] | reset | quit"

// ServeMode runs a small interactive command loop over the ledger API. Every
// rebuild happens inside an explicit refresh or submit; there is no
// background polling. When gateway credentials are configured the session is
// logged in before the loop starts.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	if a.cfg.Gateway.Username != "" {
		if err := deps.Ledger.Login(ctx, a.cfg.Gateway.Username, a.cfg.Gateway.Password); err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
	} else if _, err := deps.Ledger.Refresh(ctx, false); err != nil && !errors.Is(err, domain.ErrStaleData) {
		return fmt.Errorf("app: serve: initial refresh: %w", err)
	}

	fmt.Println(serveHelp)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if a.dispatch(ctx, deps, fields, os.Stdout) {
			return nil
		}
	}
}

// dispatch runs one serve-mode command, writing its output to w, and reports
// whether the loop should exit.
func (a *App) dispatch(ctx context.Context, deps *Dependencies, fields []string, w io.Writer) bool {
	switch fields[0] {
	case "quit", "exit":
		return true

	case "help":
		fmt.Fprintln(w, serveHelp)

	case "refresh":
		ds, err := deps.Ledger.Refresh(ctx, true)
		if err != nil && !errors.Is(err, domain.ErrStaleData) {
			fmt.Fprintln(w, "error:", err)
			return false
		}
		fmt.Fprintf(w, "version %s, %d records%s\n", ds.Version, len(ds.Records), staleSuffix(ds))

	case "catalog":
		printCatalog(w, deps.Ledger.Catalog())

	case "parties":
		parties := deps.Ledger.Parties()
		fmt.Fprintln(w, "suppliers:", strings.Join(sortedNames(parties.Suppliers), ", "))
		fmt.Fprintln(w, "customers:", strings.Join(sortedNames(parties.Customers), ", "))

	case "history":
		if len(fields) < 2 {
			fmt.Fprintln(w, "usage: history <product>")
			return false
		}
		name := strings.Join(fields[1:], " ")
		for _, m := range deps.Ledger.ProductHistory(name) {
			fmt.Fprintf(w, "%s  %s  %-8s %s  qty=%.2f  amount=%.2f\n",
				m.OrderID, m.Date, m.Direction, m.Counterparty, m.Quantity, m.Amount)
		}

	case "search":
		if len(fields) < 2 {
			fmt.Fprintln(w, "usage: search <term>")
			return false
		}
		for _, name := range deps.Ledger.SearchProducts(strings.Join(fields[1:], " ")) {
			fmt.Fprintln(w, name)
		}

	case "gen":
		if len(fields) < 2 {
			fmt.Fprintln(w, "usage: gen in|out [YYYY-MM-DD]")
			return false
		}
		dir := domain.Outbound
		if fields[1] == "in" {
			dir = domain.Inbound
		}
		date := time.Now()
		if len(fields) > 2 {
			parsed, err := time.Parse("2006-01-02", fields[2])
			if err != nil {
				fmt.Fprintln(w, "bad date:", err)
				return false
			}
			date = parsed
		}
		id, err := deps.Ledger.GenerateOrderNumber(date, dir)
		if err != nil {
			fmt.Fprintln(w, "error:", err)
			return false
		}
		fmt.Fprintln(w, id)

	case "validate":
		if len(fields) < 2 {
			fmt.Fprintln(w, "usage: validate <order-number>")
			return false
		}
		if err := deps.Ledger.CheckOrderNumber(fields[1]); err != nil {
			fmt.Fprintln(w, "error:", err)
			return false
		}
		fmt.Fprintln(w, fields[1], "is free")

	case "submit":
		rec, err := parseSubmit(fields[1:])
		if err != nil {
			fmt.Fprintln(w, err)
			return false
		}
		if err := deps.Ledger.SubmitRecord(ctx, rec); err != nil {
			fmt.Fprintln(w, "error:", err)
			return false
		}
		fmt.Fprintln(w, "submitted", rec.ID)

	case "login":
		name, password := a.cfg.Gateway.Username, a.cfg.Gateway.Password
		if len(fields) >= 3 {
			name, password = fields[1], fields[2]
		}
		if name == "" {
			fmt.Fprintln(w, "usage: login <name> <password> (or configure gateway.username)")
			return false
		}
		if err := deps.Ledger.Login(ctx, name, password); err != nil {
			fmt.Fprintln(w, "error:", err)
			return false
		}
		fmt.Fprintln(w, "logged in as", name)

	case "reset":
		if err := deps.Ledger.Reset(ctx); err != nil {
			fmt.Fprintln(w, "error:", err)
			return false
		}
		fmt.Fprintln(w, "session reset")

	default:
		fmt.Fprintln(w, "unknown command:", fields[0])
	}
	return false
}

// parseSubmit builds a one-line draft record from
// <order-number> <counterparty> <product> <unit> <qty> <amount> arguments.
func parseSubmit(args []string) (domain.OrderRecord, error) {
	if len(args) != 6 {
		return domain.OrderRecord{}, errors.New(
			"usage: submit <order-number> <counterparty> <product> <unit> <qty> <amount>")
	}
	qty, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("bad quantity %q: %w", args[4], err)
	}
	amount, err := strconv.ParseFloat(args[5], 64)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("bad amount %q: %w", args[5], err)
	}
	return domain.OrderRecord{
		ID:           args[0],
		Counterparty: args[1],
		Lines: []domain.LineItem{
			{Product: args[2], Unit: args[3], Quantity: qty, Amount: amount},
		},
	}, nil
}

func printCatalog(w io.Writer, catalog map[string]domain.ProductStat) {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stat := catalog[name]
		fmt.Fprintf(w, "%-24s %-6s latest=%.2f min=%.2f max=%.2f avg=%.2f\n",
			name, stat.Unit, stat.LatestPrice, stat.MinPrice, stat.MaxPrice, stat.AvgPrice)
	}
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func staleSuffix(ds syncer.Dataset) string {
	if ds.Stale {
		return " (stale)"
	}
	return ""
}
