package main

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	itemmatch "github.com/retreivo/itemmatch/pkg/sdk"
)

const (
	formatJSON = "json"
	formatText = "text"
)

type rootOptions struct {
	extractorURL string
	timeout      time.Duration
	fallback     bool
	topK         int
	format       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "itemmatch-eval",
		Short:        "Evaluate lost/found matching on a dataset",
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.extractorURL, "extractor", "", "Descriptor extractor base URL (images are ignored when empty)")
	f.DurationVar(&opts.timeout, "extractor-timeout", 15*time.Second, "Timeout per extraction")
	f.BoolVar(&opts.fallback, "fallback", false, "Return placeholder candidates when nothing matches")
	f.IntVarP(&opts.topK, "top", "k", 5, "Maximum candidates per query")
	f.StringVarP(&opts.format, "format", "f", formatText, "Output format: json or text")

	cmd.AddCommand(newRunCmd(opts), newQueryCmd(opts))
	return cmd
}

func (o *rootOptions) validate() error {
	if o.format != formatJSON && o.format != formatText {
		return fmt.Errorf("unknown format %q (want json or text)", o.format)
	}
	if o.topK <= 0 {
		return fmt.Errorf("--top must be positive, got %d", o.topK)
	}
	return nil
}

func (o *rootOptions) sdkOptions() []itemmatch.Option {
	opts := []itemmatch.Option{
		itemmatch.WithFallback(o.fallback),
		itemmatch.WithTopK(o.topK),
	}
	if o.extractorURL != "" {
		opts = append(opts,
			itemmatch.WithExtractor(o.extractorURL),
			itemmatch.WithExtractorTimeout(o.timeout),
		)
	}
	return opts
}

// loadClient creates a client holding every report of ds.
func (o *rootOptions) loadClient(cmd *cobra.Command, ds *dataset) (*itemmatch.Client, error) {
	c, err := itemmatch.New(cmd.Context(), o.sdkOptions()...)
	if err != nil {
		return nil, err
	}
	for _, group := range []struct {
		items []datasetItem
		t     itemmatch.ReportType
	}{{ds.Found, itemmatch.Found}, {ds.Lost, itemmatch.Lost}} {
		for i := range group.items {
			it, err := ds.item(&group.items[i], group.t)
			if err != nil {
				c.Close()
				return nil, err
			}
			if _, err := c.Store(cmd.Context(), it); err != nil {
				c.Close()
				return nil, fmt.Errorf("store %s: %w", group.items[i].ID, err)
			}
		}
	}
	return c, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
