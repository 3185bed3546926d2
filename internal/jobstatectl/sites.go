package jobstatectl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
	"github.com/G-Research/jobstate/pkg/api"
	"github.com/G-Research/jobstate/pkg/client"
)

type SiteStatusArgs struct {
	Sites   []string
	Status  sitemask.Status
	Author  string
	Comment string
}

// ListSites prints the site mask. With RedisAddrs set the mirror is read instead of the server.
func (a *App) ListSites(filter string) error {
	if len(a.Params.RedisAddrs) > 0 {
		return a.listMirroredSites(filter)
	}
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		entries, err := c.GetMask(ctx, filter)
		if err != nil {
			return errors.Wrap(err, "error listing sites")
		}
		return a.printMask(entries)
	})
}

func (a *App) listMirroredSites(filter string) error {
	f, err := sitemask.ParseFilter(filter)
	if err != nil {
		return err
	}
	return a.withMirror(func(reader *sitemask.RedisReader) error {
		entries, err := reader.GetMask(f)
		if err != nil {
			return errors.Wrap(err, "error reading site mask mirror")
		}
		return a.printMask(entries)
	})
}

func (a *App) withMirror(action func(reader *sitemask.RedisReader) error) error {
	db := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: a.Params.RedisAddrs})
	defer db.Close()
	return action(sitemask.NewRedisReader(db, a.Params.RedisKey))
}

// CheckSites prints which of sites may receive jobs.
func (a *App) CheckSites(sites []string) error {
	show := func(p sitemask.Partition) error {
		w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
		fmt.Fprintf(w, "Active:\t%s\n", strings.Join(p.Active, ", "))
		fmt.Fprintf(w, "Banned:\t%s\n", strings.Join(p.Banned, ", "))
		fmt.Fprintf(w, "Invalid:\t%s\n", strings.Join(p.Invalid, ", "))
		return w.Flush()
	}
	if len(a.Params.RedisAddrs) > 0 {
		return a.withMirror(func(reader *sitemask.RedisReader) error {
			p, err := reader.PartitionSites(sites)
			if err != nil {
				return errors.Wrap(err, "error reading site mask mirror")
			}
			return show(p)
		})
	}
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		p, err := c.PartitionSites(ctx, sites)
		if err != nil {
			return errors.Wrap(err, "error checking sites")
		}
		return show(p)
	})
}

func (a *App) printMask(entries []sitemask.Entry) error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tSTATUS\tLAST UPDATE\tAUTHOR\tCOMMENT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Site, e.Status, formatTime(e.LastUpdateTime), e.Author, e.Comment)
	}
	return w.Flush()
}

func (a *App) SetSiteStatus(args SiteStatusArgs) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		changed, err := c.SetSiteStatus(ctx, api.SiteStatusRequest{
			Sites:   args.Sites,
			Status:  string(args.Status),
			Author:  args.Author,
			Comment: args.Comment,
		})
		if err != nil {
			return errors.Wrapf(err, "error setting %s to %s", strings.Join(args.Sites, ", "), args.Status)
		}
		if len(changed) == 0 {
			fmt.Fprintf(a.Out, "No site changed, all were already %s\n", args.Status)
			return nil
		}
		fmt.Fprintf(a.Out, "Set %s to %s\n", strings.Join(changed, ", "), args.Status)
		return nil
	})
}

func (a *App) RemoveSites(sites []string) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		count, err := c.RemoveSites(ctx, sites)
		if err != nil {
			return errors.Wrap(err, "error removing sites")
		}
		fmt.Fprintf(a.Out, "Removed %d sites from the mask\n", count)
		return nil
	})
}

// SiteHistory prints the mask history of each site, oldest change first.
func (a *App) SiteHistory(sites []string) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		history, err := c.GetSiteMaskLogging(ctx, sites)
		if err != nil {
			return errors.Wrap(err, "error getting site history")
		}
		names := make([]string, 0, len(history))
		for site := range history {
			names = append(names, site)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
		fmt.Fprintln(w, "SITE\tTIME\tSTATUS\tAUTHOR\tCOMMENT")
		for _, site := range names {
			for _, e := range history[site] {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", site, formatTime(e.UpdateTime), e.Status, e.Author, e.Comment)
			}
		}
		return w.Flush()
	})
}
