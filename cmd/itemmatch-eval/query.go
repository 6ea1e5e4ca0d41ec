package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	itemmatch "github.com/retreivo/itemmatch/pkg/sdk"
)

type queryOptions struct {
	reportType  string
	name        string
	category    string
	description string
	image       string
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <dataset.json>",
		Short: "Match a single ad hoc report against a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.validate(); err != nil {
				return err
			}
			q, err := opts.build()
			if err != nil {
				return err
			}
			ds, err := loadDataset(args[0])
			if err != nil {
				return err
			}
			c, err := root.loadClient(cmd, ds)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Match(cmd.Context(), q)
			if err != nil {
				return err
			}
			if root.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), &res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.reportType, "type", "t", string(itemmatch.Lost), "Report type of the query: lost or found")
	f.StringVarP(&opts.name, "name", "n", "", "Item name")
	f.StringVarP(&opts.category, "category", "c", "", "Item category")
	f.StringVarP(&opts.description, "description", "d", "", "Item description")
	f.StringVarP(&opts.image, "image", "i", "", "Path to an image of the item")
	return cmd
}

func (o *queryOptions) build() (itemmatch.Query, error) {
	q := itemmatch.Query{
		Type:        itemmatch.ReportType(o.reportType),
		Name:        o.name,
		Category:    o.category,
		Description: o.description,
	}
	if o.image != "" {
		raw, err := os.ReadFile(o.image)
		if err != nil {
			return itemmatch.Query{}, fmt.Errorf("read image: %w", err)
		}
		q.Image = raw
	}
	return q, nil
}

func printResult(w io.Writer, res *itemmatch.Result) {
	fmt.Fprintf(w, "best score %d, next step %s (%s)\n", res.BestScore, res.NextStep, res.Method)
	for i, m := range res.Matches {
		fmt.Fprintf(w, "%d. %-20s %3d  image %3d  metadata %3d  %s\n",
			i+1, m.ItemID, m.Score, m.ImageSimilarity, m.MetadataSimilarity, m.Name)
	}
}
