package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/sarchlab/cyclesim/datarecording"
	"github.com/sarchlab/cyclesim/tracing"
	"github.com/spf13/cobra"
)

var (
	reportProcess string
	reportLimit   int
)

var reportCmd = &cobra.Command{
	Use:   "report <database>",
	Short: "Summarize the stalls recorded by run --record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return report(cmd.Context(), cmd.OutOrStdout(), args[0],
			reportProcess, reportLimit)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportProcess, "process", "",
		"only report the stalls of this process")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 0,
		"also list the first stalls, up to this many")
	rootCmd.AddCommand(reportCmd)
}

type stallKey struct {
	process string
	object  string
	reason  string
}

func report(
	ctx context.Context,
	out io.Writer,
	path, process string,
	limit int,
) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	r, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	r.MapTable(tracing.StallTable, tracing.StallEntry{})

	params := datarecording.QueryParams{OrderBy: "Cycle"}
	if process != "" {
		params.Where = "Process = ?"
		params.Args = []any{process}
	}

	rows, total, err := r.Query(ctx, tracing.StallTable, params)
	if err != nil {
		return fmt.Errorf("reading stalls: %w", err)
	}

	fmt.Fprintf(out, "Stalls: %d\n", total)

	printStallCounts(out, rows)

	if limit > 0 {
		printFirstStalls(out, rows, limit)
	}

	return nil
}

func printStallCounts(out io.Writer, rows []any) {
	counts := make(map[stallKey]int)

	for _, row := range rows {
		e := row.(*tracing.StallEntry)
		counts[stallKey{e.Process, e.Object, e.Reason}]++
	}

	keys := make([]stallKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}

		if keys[i].process != keys[j].process {
			return keys[i].process < keys[j].process
		}

		return keys[i].object < keys[j].object
	})

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROCESS\tOBJECT\tREASON\tCOUNT")

	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			k.process, k.object, k.reason, counts[k])
	}

	w.Flush()
}

func printFirstStalls(out io.Writer, rows []any, limit int) {
	if limit > len(rows) {
		limit = len(rows)
	}

	for _, row := range rows[:limit] {
		e := row.(*tracing.StallEntry)
		fmt.Fprintf(out, "[%08d:%s] %s: %s: %s\n",
			e.Cycle, e.Process, e.Phase, e.Object, e.Reason)
	}
}
