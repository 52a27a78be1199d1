package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/observability"
	"github.com/3leaps/cloudkit/pkg/match"
	"github.com/3leaps/cloudkit/pkg/output"
	"github.com/3leaps/cloudkit/pkg/storage"
)

var lsCmd = &cobra.Command{
	Use:   "ls <uri>",
	Short: "List files in a container",
	Long: `List files under a prefix, page by page.

A glob in the URI (or --match) is applied client-side with doublestar
semantics; only its static prefix is sent to the provider. Each page is
followed by a page record carrying the marker to resume from, and the run
ends with a summary record.

Examples:
  cloudkit ls s3://reports/2024/
  cloudkit ls s3://reports/**/*.csv --min-size 1MB
  cloudkit ls minio://logs/ --match 'app/**' --exclude '**/*.tmp' --limit 100
  cloudkit ls s3://reports/ --max-keys 50 --marker 2024/06/`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

var (
	lsLimit   int
	lsMaxKeys int
	lsMarker  string
	lsMatch   []string
	lsExclude []string
	lsHidden  bool
	lsFilter  match.FilterConfig
)

func init() {
	rootCmd.AddCommand(lsCmd)

	f := lsCmd.Flags()
	f.IntVarP(&lsLimit, "limit", "n", 0, "stop after this many matching files (0 = no limit)")
	f.IntVar(&lsMaxKeys, "max-keys", 0, "page size requested from the provider (0 = provider default)")
	f.StringVar(&lsMarker, "marker", "", "resume the listing after this name")
	f.StringSliceVar(&lsMatch, "match", nil, "include glob (repeatable)")
	f.StringSliceVar(&lsExclude, "exclude", nil, "exclude glob (repeatable)")
	f.BoolVar(&lsHidden, "hidden", false, "include names with a segment starting with '.'")
	f.StringVar(&lsFilter.MinSize, "min-size", "", "minimum size, inclusive (e.g. 10KB, 1MiB)")
	f.StringVar(&lsFilter.MaxSize, "max-size", "", "maximum size, inclusive")
	f.StringVar(&lsFilter.After, "after", "", "modified at or after (RFC 3339 or YYYY-MM-DD)")
	f.StringVar(&lsFilter.Before, "before", "", "modified before (RFC 3339 or YYYY-MM-DD)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	u, err := parseArgURI(args[0])
	if err != nil {
		return err
	}

	matcher, err := listMatcher(u)
	if err != nil {
		return exitError(apperrors.ExitInvalidArgument, "invalid filter", err)
	}

	prefix := listPrefix(u, matcher)

	client, err := openClient(ctx, u.Provider)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := newWriter(cmd, u.Provider)
	defer func() { _ = w.Close() }()

	summary := &output.SummaryRecord{}
	opts := storage.ListOptions{Prefix: prefix, Marker: lsMarker, MaxKeys: lsMaxKeys}

	for pages := 0; ; pages++ {
		res, err := client.GetFiles(ctx, u.ContainerRef(), opts)
		if err != nil {
			summary.Errors++
			finishSummary(cmd, w, summary, start)
			return reportError(cmd, w, err)
		}

		files := res.Files
		if matcher != nil {
			files = matcher.Select(files)
		}

		emitted := 0
		for _, f := range files {
			if lsLimit > 0 && summary.Files >= int64(lsLimit) {
				break
			}
			if err := w.WriteFile(ctx, output.NewFileRecord(f)); err != nil {
				return err
			}
			summary.Files++
			summary.Bytes += f.Size
			emitted++
		}

		page := res.Page
		if page.IsTruncated && page.NextMarker == "" && len(res.Files) > 0 {
			page.NextMarker = res.Files[len(res.Files)-1].Name
		}
		if err := w.WritePage(ctx, &output.PageRecord{Container: u.Container, Count: emitted, Page: page}); err != nil {
			return err
		}

		observability.CLILogger.Debug("listed page",
			zap.Int("page", pages),
			zap.Int("listed", len(res.Files)),
			zap.Int("matched", emitted),
			zap.Bool("truncated", page.IsTruncated))

		if !page.IsTruncated || page.NextMarker == "" || (lsLimit > 0 && summary.Files >= int64(lsLimit)) {
			break
		}
		opts.Marker = page.NextMarker
	}

	finishSummary(cmd, w, summary, start)
	return nil
}

// listMatcher builds the client-side matcher, or nil when nothing filters.
// --match globs are relative to the URI prefix unless the URI is itself a
// glob. Hidden names are only dropped when a glob was given.
func listMatcher(u *ObjectURI) (*match.Matcher, error) {
	filter, err := match.NewFilter(lsFilter)
	if err != nil {
		return nil, err
	}

	var includes []string
	if u.IsPattern() {
		includes = append(includes, u.Pattern)
		includes = append(includes, lsMatch...)
	} else {
		for _, m := range lsMatch {
			includes = append(includes, u.Key+m)
		}
	}

	hidden := lsHidden
	if len(includes) == 0 {
		if filter == nil && len(lsExclude) == 0 {
			return nil, nil
		}
		includes = []string{"**"}
		hidden = true
	}

	return match.New(match.Config{
		Includes:      includes,
		Excludes:      lsExclude,
		IncludeHidden: hidden,
		Filter:        filter,
	})
}

// listPrefix is the provider-side prefix covering every include.
func listPrefix(u *ObjectURI, m *match.Matcher) string {
	if m != nil && u.IsPattern() && len(lsMatch) > 0 {
		return m.Prefix()
	}
	return u.Key
}

func finishSummary(cmd *cobra.Command, w output.Writer, s *output.SummaryRecord, start time.Time) {
	s.Duration = time.Since(start)
	s.DurationHuman = s.Duration.Round(time.Millisecond).String()
	_ = w.WriteSummary(cmd.Context(), s)
}
