package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render formats the report as plain text, one table per store plus a
// failed-items section. Used for email bodies and the CLI.
func Render(report Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s run, %d item(s) requested\n", report.Kind, report.Requested)
	if report.Store != "" {
		fmt.Fprintf(&b, "store: %s\n", report.Store)
	}
	fmt.Fprintf(&b, "generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04"))

	stores := make([]string, 0, len(report.Results))
	for storeName := range report.Results {
		stores = append(stores, storeName)
	}
	sort.Strings(stores)

	for _, storeName := range stores {
		results := report.Results[storeName]

		var total float64
		t := table.NewWriter()
		t.SetTitle(storeName)
		t.AppendHeader(table.Row{"item", "product", "unit price", "packages", "total"})
		for _, r := range results {
			if r.Error != "" {
				t.AppendRow(table.Row{r.ItemName, "not found: " + r.Error, "", "", ""})
				continue
			}
			t.AppendRow(table.Row{
				r.ItemName,
				r.Product.Name,
				fmt.Sprintf("%.2f €/%s", r.Product.UnitPrice, r.Product.Unit),
				r.Packages,
				fmt.Sprintf("%.2f €", r.Total),
			})
			total += r.Total
		}
		t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%.2f €", total)})

		b.WriteString("\n")
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	if len(report.Failed) > 0 {
		t := table.NewWriter()
		t.SetTitle("not found")
		t.AppendHeader(table.Row{"item", "reason"})
		for _, f := range report.Failed {
			t.AppendRow(table.Row{f.Name, f.Reason})
		}
		b.WriteString("\n")
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	return b.String()
}
