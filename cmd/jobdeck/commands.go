package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobdeck/jobdeck/internal/api"
	"github.com/jobdeck/jobdeck/internal/config"
	"github.com/jobdeck/jobdeck/internal/connector"
	"github.com/jobdeck/jobdeck/internal/fetch"
	"github.com/jobdeck/jobdeck/internal/normalize"
	"github.com/jobdeck/jobdeck/internal/quota"
	"github.com/jobdeck/jobdeck/internal/scrape"
	"github.com/jobdeck/jobdeck/internal/storage"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search job postings, fetching sources whose cache has gone stale",
	Long: `Search job postings across the enabled sources.

Results always come from the local cache. Sources whose cache is still
fresh are not fetched; stale ones are, within the monthly quota.

Examples:
  jobdeck search golang 后端
  jobdeck search python --location shanghai --source zhaopin
  jobdeck search devops --limit 10 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")
		sourcesStr, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.orch.Resolve(cmd.Context(),
			connector.Query{Text: strings.Join(args, " "), Location: location},
			fetch.Options{Sources: splitList(sourcesStr), Limit: limit})
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(result)
		}
		printReports(result.Reports)
		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		printPostings(result.Postings)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("location", "", "city to scope the search to")
	searchCmd.Flags().String("source", "", "comma-separated sources (default: all enabled)")
	searchCmd.Flags().Int("limit", 20, "maximum number of postings to show")
	searchCmd.Flags().Bool("json", false, "print the full result set as JSON")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached postings without fetching anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		sourcesStr, _ := cmd.Flags().GetString("source")
		location, _ := cmd.Flags().GetString("location")
		minSalary, _ := cmd.Flags().GetInt("min-salary")
		tagsStr, _ := cmd.Flags().GetString("tags")
		experience, _ := cmd.Flags().GetString("experience")
		includeInactive, _ := cmd.Flags().GetBool("include-inactive")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		postings, err := a.store.FindPostings(storage.Filters{
			Query:           query,
			Sources:         splitList(sourcesStr),
			Location:        normalize.NormalizeLocation(location),
			MinSalaryK:      minSalary,
			Tags:            splitList(tagsStr),
			Experience:      experience,
			IncludeInactive: includeInactive,
			Limit:           limit,
		})
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(postings)
		}
		printPostings(postings)
		return nil
	},
}

func init() {
	listCmd.Flags().String("query", "", "match against title, company, or description")
	listCmd.Flags().String("source", "", "comma-separated sources")
	listCmd.Flags().String("location", "", "city filter")
	listCmd.Flags().Int("min-salary", 0, "minimum monthly salary in thousands of CNY")
	listCmd.Flags().String("tags", "", "comma-separated tags, all must match")
	listCmd.Flags().String("experience", "", "exact experience band, e.g. \"3-5 years\"")
	listCmd.Flags().Bool("include-inactive", false, "include postings no longer seen at their source")
	listCmd.Flags().Int("limit", 50, "maximum number of postings to show")
	listCmd.Flags().Bool("json", false, "print postings as JSON")
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one cached posting in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		posting, err := a.store.GetPosting(args[0])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no posting with id %s", args[0])
			}
			return err
		}

		if asJSON {
			return printJSON(posting)
		}
		printPostingDetail(posting)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "print the posting as JSON")
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh <query>",
	Short: "Fetch now, ignoring cache freshness and suspension",
	Long: `Force a fetch for the given query. The staleness policy and source
suspension are bypassed; the monthly quota is not.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")
		sourcesStr, _ := cmd.Flags().GetString("source")
		depth, _ := cmd.Flags().GetString("depth")

		switch depth {
		case "", "shallow", "deep":
		default:
			return fmt.Errorf("invalid --depth %q, want shallow or deep", depth)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.orch.Resolve(cmd.Context(),
			connector.Query{Text: strings.Join(args, " "), Location: location},
			fetch.Options{
				Sources:       splitList(sourcesStr),
				Depth:         storage.Depth(depth),
				ManualRefresh: true,
			})
		if err != nil {
			return err
		}

		printReports(result.Reports)
		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		fetched := 0
		for _, r := range result.Reports {
			fetched += r.Fetched
		}
		printSuccess("Refresh done, %d postings fetched, %d in cache for this query",
			fetched, len(result.Postings))
		return nil
	},
}

func init() {
	refreshCmd.Flags().String("location", "", "city to scope the fetch to")
	refreshCmd.Flags().String("source", "", "comma-separated sources (default: all enabled)")
	refreshCmd.Flags().String("depth", "", "fetch depth: shallow or deep (default: policy decides)")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache contents, per-source state, and quota usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.store.CountPostingsBySource()
		if err != nil {
			return err
		}
		states, err := a.store.ListSourceStates()
		if err != nil {
			return err
		}
		usage, err := a.orch.Usage()
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(api.StatsResponse{Sources: counts, States: states, Quota: usage})
		}

		month := quota.MonthKey(time.Now())
		printStatus("Quota", "%d of %d used in %s", usage.Used, usage.Limit, month)
		if usage.Exhausted() {
			printWarning("quota exhausted; only cached results until next month")
		} else if usage.Warn {
			printWarning("quota at %d%%", int(usage.Ratio()*100))
		}

		for _, c := range counts {
			printStatus(c.Source, "%d active, %d inactive", c.Active, c.Inactive)
		}
		for _, st := range states {
			line := fmt.Sprintf("shallow %s, deep %s", formatAge(st.LastShallowAt), formatAge(st.LastDeepAt))
			if st.ConsecutiveFailures > 0 {
				line += fmt.Sprintf(", %d consecutive failures", st.ConsecutiveFailures)
			}
			if a.policy.Suspended(st) {
				line += " (suspended)"
			}
			printStatus(st.Source+" fetches", "%s", line)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "print stats as JSON")
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show configured sources and their fetch state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, src := range a.cfg.Sources {
			if !src.Enabled {
				printStatus(src.Name, "disabled")
				continue
			}

			st, err := a.store.GetSourceState(src.Name)
			if err != nil {
				return err
			}
			switch {
			case a.policy.Suspended(st):
				printStatus(src.Name, "suspended after %d failures (last: %s)",
					st.ConsecutiveFailures, truncate(st.LastError, 60))
			case st.LastShallowAt.IsZero() && st.LastDeepAt.IsZero():
				printStatus(src.Name, "enabled, never fetched")
			default:
				printStatus(src.Name, "enabled, shallow %s, deep %s",
					formatAge(st.LastShallowAt), formatAge(st.LastDeepAt))
			}
		}
		return nil
	},
}

// --- prune ---

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete postings that have been inactive past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		confirm, _ := cmd.Flags().GetBool("confirm")

		if !confirm {
			printWarning("This permanently deletes inactive postings unseen for %s. Use --confirm to proceed.", olderThan)
			return nil
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.store.PruneInactive(time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		printSuccess("Pruned %d postings", n)
		return nil
	},
}

func init() {
	pruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "how long a posting must be unseen before deletion")
	pruneCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the scraping gateway connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		gateway := scrape.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, version)

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		printStep("Contacting scraping gateway...")
		tools, err := gateway.Tools(ctx)
		if err != nil {
			printError("gateway unreachable: %v", err)
			return err
		}
		printSuccess("Gateway reachable, %d tools advertised", len(tools))
		return nil
	},
}

// --- shared rendering ---

func printReports(reports []fetch.SourceReport) {
	for _, r := range reports {
		switch r.Status {
		case fetch.StatusFresh:
			printSuccess("%s: fetched %d postings (%s)", r.Source, r.Fetched, r.Depth)
		case fetch.StatusCached:
			printStep("%s: cache is fresh", r.Source)
		case fetch.StatusFailed:
			printError("%s: fetch failed, serving cached results (%s)", r.Source, r.Err)
		case fetch.StatusSuspended:
			printWarning("%s: suspended after repeated failures; run refresh to retry it", r.Source)
		case fetch.StatusQuotaExhausted:
			printWarning("%s: monthly quota exhausted, serving cached results", r.Source)
		case fetch.StatusTimeout:
			printStep("%s: still fetching in the background; results land in the cache", r.Source)
		case fetch.StatusUnknown:
			printWarning("%s: unknown source", r.Source)
		}
	}
}

func printPostings(postings []storage.Posting) {
	if len(postings) == 0 {
		fmt.Println("No postings found.")
		return
	}
	for _, p := range postings {
		fmt.Printf("\n%s  %s\n", colorize(colorBold, p.Title), colorize(colorCyan, p.ID))
		parts := []string{p.Company}
		if p.Location != "" {
			parts = append(parts, p.Location)
		}
		if p.SalaryText != "" {
			parts = append(parts, p.SalaryText)
		}
		if p.Experience != "" {
			parts = append(parts, p.Experience)
		}
		fmt.Printf("  %s\n", strings.Join(parts, "  "))
		if len(p.Tags) > 0 {
			fmt.Printf("  %s\n", strings.Join(p.Tags, ", "))
		}
		fmt.Printf("  %s\n", p.URL)
	}
}

func printPostingDetail(p storage.Posting) {
	fmt.Println(colorize(colorBold, p.Title))
	field := func(label, value string) {
		if value != "" {
			fmt.Printf("  %s %s\n", colorize(colorBold, label+":"), value)
		}
	}
	field("ID", p.ID)
	field("Source", p.Source)
	field("Company", p.Company)
	field("Location", p.Location)
	field("Salary", p.SalaryText)
	field("Experience", p.Experience)
	field("Education", p.Education)
	field("Posted", p.PostedAt)
	field("Tags", strings.Join(p.Tags, ", "))
	field("URL", p.URL)
	field("First seen", p.FirstFetchedAt.Local().Format("2006-01-02 15:04"))
	field("Last seen", p.LastSeenAt.Local().Format("2006-01-02 15:04"))
	if !p.Active {
		printWarning("no longer listed at its source")
	}
	if p.Description != "" {
		fmt.Printf("\n  %s\n", truncate(p.Description, 500))
	}
	if len(p.Requirements) > 0 {
		fmt.Println()
		for _, req := range p.Requirements {
			fmt.Printf("  - %s\n", req)
		}
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
