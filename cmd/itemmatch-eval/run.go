package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	itemmatch "github.com/retreivo/itemmatch/pkg/sdk"
)

// queryReport is the outcome for one lost report.
type queryReport struct {
	ID        string `json:"id"`
	Expected  string `json:"expected,omitempty"`
	BestMatch string `json:"best_match,omitempty"`
	BestScore int    `json:"best_score"`
	NextStep  string `json:"next_step"`
	Method    string `json:"method"`
	Rank      int    `json:"rank"` // 1-based position of Expected, 0 when absent
}

// runReport summarises a dataset run.
type runReport struct {
	Title    string        `json:"title,omitempty"`
	Queries  []queryReport `json:"queries"`
	Labelled int           `json:"labelled"`
	Top1     int           `json:"top1"`
	TopK     int           `json:"top_k"`
	Approved int           `json:"approved"`
	Verify   int           `json:"verify"`
	Rejected int           `json:"rejected"`
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <dataset.json>",
		Short: "Match every lost report of a dataset against its found reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			ds, err := loadDataset(args[0])
			if err != nil {
				return err
			}
			c, err := opts.loadClient(cmd, ds)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := evaluate(cmd, c, ds)
			if err != nil {
				return err
			}
			if opts.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printRunReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func evaluate(cmd *cobra.Command, c *itemmatch.Client, ds *dataset) (*runReport, error) {
	report := &runReport{Title: ds.Title, Queries: make([]queryReport, 0, len(ds.Lost))}
	for i := range ds.Lost {
		it := &ds.Lost[i]
		q, err := ds.query(it, itemmatch.Lost)
		if err != nil {
			return nil, err
		}
		res, err := c.Match(cmd.Context(), q)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", it.ID, err)
		}

		qr := queryReport{
			ID:        it.ID,
			Expected:  it.Expected,
			BestScore: res.BestScore,
			NextStep:  res.NextStep,
			Method:    res.Method,
		}
		if len(res.Matches) > 0 {
			qr.BestMatch = res.Matches[0].ItemID
		}
		for pos, m := range res.Matches {
			if it.Expected != "" && m.ItemID == it.Expected {
				qr.Rank = pos + 1
				break
			}
		}
		report.add(qr)
	}
	return report, nil
}

func (r *runReport) add(q queryReport) {
	r.Queries = append(r.Queries, q)
	switch q.NextStep {
	case "approve_online":
		r.Approved++
	case "request_verification":
		r.Verify++
	default:
		r.Rejected++
	}
	if q.Expected == "" {
		return
	}
	r.Labelled++
	if q.Rank == 1 {
		r.Top1++
	}
	if q.Rank > 0 {
		r.TopK++
	}
}

func printRunReport(w io.Writer, r *runReport) {
	if r.Title != "" {
		fmt.Fprintf(w, "%s\n", r.Title)
	}
	for _, q := range r.Queries {
		mark := " "
		switch {
		case q.Expected == "":
		case q.Rank == 1:
			mark = "+"
		default:
			mark = "-"
		}
		fmt.Fprintf(w, "%s %-20s -> %-20s %3d  %-20s %s\n", mark, q.ID, orDash(q.BestMatch), q.BestScore, q.NextStep, q.Method)
	}
	fmt.Fprintf(w, "\nqueries: %d  approve: %d  verify: %d  reject: %d\n",
		len(r.Queries), r.Approved, r.Verify, r.Rejected)
	if r.Labelled > 0 {
		fmt.Fprintf(w, "labelled: %d  top-1: %d (%.1f%%)  top-k: %d (%.1f%%)\n",
			r.Labelled,
			r.Top1, 100*float64(r.Top1)/float64(r.Labelled),
			r.TopK, 100*float64(r.TopK)/float64(r.Labelled))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
