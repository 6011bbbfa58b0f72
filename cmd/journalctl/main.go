// Command journalctl prints the records of an exchange journal without
// opening it for writing.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"

	"matchcore/domain/event"
	"matchcore/infra/journal"
)

var errLimit = errors.New("limit reached")

func main() {
	path := flag.String("journal", "data/exchange.journal", "journal file")
	from := flag.Int64("from", 0, "byte offset to start at; must be a record boundary")
	limit := flag.Int("limit", 0, "stop after n records (0 = all)")
	sizeOnly := flag.Bool("size", false, "print the file size and exit")
	flag.Parse()

	r := journal.NewReader(*path)
	if *sizeOnly {
		size, err := r.Size()
		if err != nil {
			fail(err)
		}
		fmt.Println(size)
		return
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	n := 0
	end, err := r.ReadFrom(*from, func(rec journal.Record) error {
		if *limit > 0 && n >= *limit {
			return errLimit
		}
		n++
		fmt.Fprintf(out, "%d\t%s\n", rec.Offset, describe(rec.Event))
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		out.Flush()
		fail(err)
	}
	fmt.Fprintf(out, "# %d records, next offset %d\n", n, end)
}

func describe(ev event.Event) string {
	switch ev := ev.(type) {
	case event.OrderPlaced:
		return fmt.Sprintf("%s\tuser=%d client_order_id=%s side=%s instrument=%d amount=%s price=%s",
			ev.EventType(), ev.UserID, ev.ClientOrderID, ev.Side, ev.InstrumentID, ev.Amount, ev.Price)
	case event.Deposit:
		return fmt.Sprintf("%s\tuser=%d asset=%d amount=%s",
			ev.EventType(), ev.UserID, ev.AssetID, ev.Amount)
	default:
		return fmt.Sprintf("%T", ev)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "journalctl:", err)
	os.Exit(1)
}
