package jobstatectl

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/jobstate/status"
	"github.com/G-Research/jobstate/pkg/client"
)

// SiteSummary prints job counts per site and status, one column per status seen.
func (a *App) SiteSummary() error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		summary, err := c.GetSiteSummary(ctx)
		if err != nil {
			return errors.Wrap(err, "error getting site summary")
		}
		sites := make([]string, 0, len(summary))
		seen := map[status.Status]bool{}
		for site, counts := range summary {
			sites = append(sites, site)
			for s := range counts {
				seen[s] = true
			}
		}
		sort.Strings(sites)
		var columns []status.Status
		for _, s := range status.All {
			if seen[s] {
				columns = append(columns, s)
			}
		}

		w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', tabwriter.AlignRight)
		fmt.Fprint(w, "SITE\t")
		for _, s := range columns {
			fmt.Fprintf(w, "%s\t", s)
		}
		fmt.Fprintln(w)
		for _, site := range sites {
			fmt.Fprintf(w, "%s\t", site)
			for _, s := range columns {
				fmt.Fprintf(w, "%d\t", summary[site][s])
			}
			fmt.Fprintln(w)
		}
		return w.Flush()
	})
}
