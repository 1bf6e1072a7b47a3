package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"main/internal/donation"
	"main/internal/ops"
	"main/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "delta: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "data", "Tracker data directory")
	clanTag := flag.String("clan", "", "Clan tag")
	month := flag.String("month", "", "Month key YYYY-MM (default: current month)")
	history := flag.Int("history", 0, "Print the last N monthly deltas instead of one month")
	flag.Parse()

	if *clanTag == "" {
		return fmt.Errorf("missing clan tag; use -clan")
	}
	tag := ops.NormalizeTag(*clanTag)

	kv, err := store.NewFileStore(*dataDir)
	if err != nil {
		return err
	}
	engine := donation.NewEngine(context.Background(), kv)

	if *history > 0 {
		return printHistory(engine, tag, *history)
	}

	key := *month
	if key == "" {
		key = donation.MonthKey(time.Now())
	}
	delta, ok := engine.Delta(tag, key)
	if !ok {
		return fmt.Errorf("no snapshot for %s in %s", tag, key)
	}
	printDelta(delta, tag)
	return nil
}

func printDelta(d donation.Delta, tag string) {
	if d.NoBaseline {
		fmt.Printf("%s %s: first recorded month, no baseline yet\n", tag, d.Month)
		return
	}

	type row struct {
		name    string
		monthly int
	}
	rows := make([]row, 0, len(d.Members))
	for _, m := range d.Members {
		rows = append(rows, row{name: m.Name, monthly: m.Monthly})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].monthly != rows[j].monthly {
			return rows[i].monthly > rows[j].monthly
		}
		return rows[i].name < rows[j].name
	})

	fmt.Printf("%s %s: %d donations across %d members\n", tag, d.Month, d.Total, len(rows))
	for _, r := range rows {
		fmt.Printf("  %6d  %s\n", r.monthly, r.name)
	}
}

func printHistory(engine *donation.Engine, tag string, limit int) error {
	deltas := engine.History(tag, limit)
	if len(deltas) == 0 {
		return fmt.Errorf("no snapshots for %s", tag)
	}
	if since, ok := engine.TrackingSince(tag); ok {
		fmt.Printf("%s tracked since %s\n", tag, since)
	}
	for _, d := range deltas {
		if d.NoBaseline {
			fmt.Printf("  %s  (baseline)\n", d.Month)
			continue
		}
		fmt.Printf("  %s  total=%d members=%d\n", d.Month, d.Total, len(d.Members))
	}
	return nil
}
