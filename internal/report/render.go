package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteInventory renders the inventory view as an aligned table.
func WriteInventory(w io.Writer, rows []InventoryRow) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ASSET KEY\tTYPE\tGROUP\tPIPELINE\tOWNERS\tTAGS\tDEPS\tVERSION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.AssetKey, r.Type, orDash(r.Group), orDash(r.Pipeline),
			r.OwnerCount, r.TagCount, r.DependencyCount, r.Version)
	}
	return tw.Flush()
}

// WriteHealth renders the health view as an aligned table.
func WriteHealth(w io.Writer, rows []HealthRow) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ASSET KEY\tSTATUS\tSUMMARY\tFAILURES\tALERTS\tLAST RUN\tLAST RUN AT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.AssetKey, r.Status, r.SummaryStatus, r.FailureCount, r.AlertCount,
			r.LastExecutionStatus, formatTime(r.LastExecutionTime))
	}
	return tw.Flush()
}

// WriteOwnership renders the ownership view as an aligned table.
func WriteOwnership(w io.Writer, rows []OwnershipRow) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "OWNER\tASSET KEY\tNAME\tTYPE\tGROUP")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Owner, r.AssetKey, orDash(r.Name), r.Type, orDash(r.Group))
	}
	return tw.Flush()
}

// WriteAlertCounts renders active alert counts, one severity per line.
func WriteAlertCounts(w io.Writer, c AlertCounts) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SEVERITY\tACTIVE")
	fmt.Fprintf(tw, "HIGH\t%d\n", c.High)
	fmt.Fprintf(tw, "MEDIUM\t%d\n", c.Medium)
	fmt.Fprintf(tw, "LOW\t%d\n", c.Low)
	fmt.Fprintf(tw, "TOTAL\t%d\n", c.Total)
	return tw.Flush()
}
