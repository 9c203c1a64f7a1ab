package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/query"
)

// withOffline runs fn against the persisted state.
func withOffline(cmd *cobra.Command, readFeed bool, fn func(o *offline) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := quietLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	o, err := openOffline(cmd.Context(), cfg, log, readFeed)
	if err != nil {
		return err
	}
	defer o.Close()
	return fn(o)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.jsonl|->",
	Short: "Ingest a JSONL file of activity entries into the stored graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		entries, err := activity.ReadEntries(r)
		if err != nil {
			return err
		}

		return withOffline(cmd, false, func(o *offline) error {
			added := o.Accept(activity.Delta{Activities: entries})
			o.RunEnrichment(true)
			if err := o.Persist(cmd.Context()); err != nil {
				return err
			}
			nodes, edges := o.Store().Len()
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d entries (%d occurrences); graph has %d nodes, %d edges\n",
				len(entries), added, nodes, edges)
			return nil
		})
	},
}

// --- graph ---

var graphLimit int

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "List the top entities in the stored graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOffline(cmd, false, func(o *offline) error {
			view := query.GraphView(o.Store(), query.ViewOptions{
				Limit:         graphLimit,
				MinEdgeWeight: o.Config().Graph.MinEdgeWeight,
			})
			if len(view.Nodes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Graph is empty.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tTYPE\tLABEL\tWEIGHT\tROLE")
			for _, n := range view.Nodes {
				fmt.Fprintf(w, "%.1f\t%s\t%s\t%d\t%s\n", n.Score, n.Type, n.Label, n.Weight, n.Role)
			}
			fmt.Fprintf(w, "\n%d of %d nodes, %d edges shown\n", len(view.Nodes), view.Total, len(view.Edges))
			return w.Flush()
		})
	},
}

// --- people ---

var peopleLimit int

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List the people in the stored graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOffline(cmd, false, func(o *offline) error {
			people := o.UserModel().People(peopleLimit)
			if len(people) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No people yet.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tRELATIONSHIP\tCHANNELS\tSALIENCE")
			for _, p := range people {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", p.Label, p.Relationship, strings.Join(p.Channels, ","), p.Salience)
			}
			return w.Flush()
		})
	},
}

// --- blocks ---

var blocksSince time.Duration

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Show task blocks from the activity feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOffline(cmd, true, func(o *offline) error {
			blocks := o.UserModel().TaskBlocks(o.Now().Add(-blocksSince), time.Time{})
			if len(blocks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No activity in that window.")
				return nil
			}
			for _, b := range blocks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s-%s  %-9s %5.1fm  %s\n",
					b.Start.Local().Format("15:04"), b.End.Local().Format("15:04"), b.Intent, b.Minutes, b.Label)
				if len(b.Entities) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "             %s\n", strings.Join(b.Entities, ", "))
				}
			}
			return nil
		})
	},
}

// --- search ---

var (
	searchLimit int
	searchType  string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entities by label",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var typ graph.EntityType
		if searchType != "" {
			t, ok := graph.ParseType(searchType)
			if !ok {
				return fmt.Errorf("unknown entity type %q", searchType)
			}
			typ = t
		}
		q := strings.Join(args, " ")
		return withOffline(cmd, false, func(o *offline) error {
			results := query.Search(o.Store(), q, query.SearchOpts{Limit: searchLimit, Type: typ})
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.2f] %s (%s, weight %d)\n", i+1, r.Score, r.Node.Label, r.Node.Type, r.Node.Weight)
			}
			return nil
		})
	},
}

// --- reset ---

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the stored graph, signals and metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("refusing to delete data without --yes")
		}
		return withOffline(cmd, true, func(o *offline) error {
			if err := o.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All data cleared.")
			return nil
		})
	},
}

func init() {
	graphCmd.Flags().IntVarP(&graphLimit, "limit", "n", 25, "maximum number of nodes")
	peopleCmd.Flags().IntVarP(&peopleLimit, "limit", "n", 20, "maximum number of people")
	blocksCmd.Flags().DurationVar(&blocksSince, "since", 24*time.Hour, "how far back to look")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "only entities of this type")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")
}
