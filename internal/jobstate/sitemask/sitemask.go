// Package sitemask holds the site mask vocabulary shared by the postgres store and its redis mirror.
package sitemask

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

// Status of a site. A site absent from the mask is unknown, which is not the same as Banned.
type Status string

const (
	Active  Status = "Active"
	Banned  Status = "Banned"
	Probing Status = "Probing"
)

var Statuses = []Status{Active, Banned, Probing}

func ParseStatus(s string) (Status, error) {
	for _, status := range Statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(status)) {
			return status, nil
		}
	}
	return "", errors.WithStack(&wmserrors.ErrInvalidArgument{
		Name:    "Status",
		Value:   s,
		Message: "site status must be one of Active, Banned or Probing",
	})
}

// Filter restricts a mask lookup to one status, or to none with All.
type Filter string

const All Filter = "All"

func ParseFilter(s string) (Filter, error) {
	if s == "" || strings.EqualFold(s, string(All)) {
		return All, nil
	}
	status, err := ParseStatus(s)
	if err != nil {
		return "", err
	}
	return Filter(status), nil
}

func (f Filter) Matches(s Status) bool {
	return f == All || Status(f) == s
}

type Entry struct {
	Site           string    `json:"site"`
	Status         Status    `json:"status"`
	LastUpdateTime time.Time `json:"lastUpdateTime"`
	Author         string    `json:"author"`
	Comment        string    `json:"comment"`
}

// LogEntry is one row of the append-only site mask history.
type LogEntry struct {
	Site       string    `json:"site"`
	Status     Status    `json:"status"`
	UpdateTime time.Time `json:"updateTime"`
	Author     string    `json:"author"`
	Comment    string    `json:"comment"`
}

// Partition splits candidate sites by admission. Invalid holds every site that is
// neither Active nor Banned: unknown sites and Probing sites.
type Partition struct {
	Active  []string `json:"active"`
	Banned  []string `json:"banned"`
	Invalid []string `json:"invalid"`
}

// PartitionSites splits sites using the statuses of the known sites. The three sets are
// disjoint, sorted and together hold every distinct input site.
func PartitionSites(sites []string, known map[string]Status) Partition {
	p := Partition{Active: []string{}, Banned: []string{}, Invalid: []string{}}
	for _, site := range util.Unique(sites) {
		switch known[site] {
		case Active:
			p.Active = append(p.Active, site)
		case Banned:
			p.Banned = append(p.Banned, site)
		default:
			p.Invalid = append(p.Invalid, site)
		}
	}
	sort.Strings(p.Active)
	sort.Strings(p.Banned)
	sort.Strings(p.Invalid)
	return p
}

// FilterEntries returns the entries matching filter, sorted by site.
func FilterEntries(entries []Entry, filter Filter) []Entry {
	result := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if filter.Matches(e.Status) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Site < result[j].Site })
	return result
}

// UnknownSite is returned when a single site lookup finds no entry.
func UnknownSite(site string) error {
	return errors.WithStack(&wmserrors.ErrNotFound{
		Type:    "site",
		Value:   site,
		Message: "site is not in the site mask",
	})
}

func IsUnknownSite(err error) bool {
	var e *wmserrors.ErrNotFound
	return errors.As(err, &e) && e.Type == "site"
}
