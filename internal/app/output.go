package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/f1v3nt5/poketroid/internal/models"
)

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(header) > 0 {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	return tw
}

func row(tw *tabwriter.Writer, cells ...any) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprint(cell)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

// lists renders the lists an item belongs to, "-" when none.
func lists(m models.Membership) string {
	var names []string
	if m.Planned {
		names = append(names, string(models.ListPlanned))
	}
	if m.Completed {
		names = append(names, string(models.ListCompleted))
	}
	if m.Favorite {
		names = append(names, string(models.ListFavorite))
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func year(y int) string {
	if y <= 0 {
		return "-"
	}
	return strconv.Itoa(y)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func writeEntries(w io.Writer, entries []models.CatalogEntry) error {
	tw := newTable(w, "ID", "TITLE", "TYPE", "YEAR", "RATING", "LISTS")
	for _, entry := range entries {
		item := entry.Media
		row(tw, item.ID, item.Title, item.Type, year(item.ReleaseYear), fmt.Sprintf("%.1f", item.Rating), lists(entry.Membership))
	}
	return tw.Flush()
}

func writeUsers(w io.Writer, users []models.User) error {
	tw := newTable(w, "ID", "USERNAME", "NAME")
	for _, user := range users {
		row(tw, user.ID, user.Username, orDash(user.DisplayName))
	}
	return tw.Flush()
}
