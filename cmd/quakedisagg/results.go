package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/quakedisagg/internal/disagg"
	"github.com/rewired-gh/quakedisagg/internal/models"
	"github.com/rewired-gh/quakedisagg/internal/storage"
)

var (
	filterSite  int
	filterRlz   int
	filterIMT   string
	filterLimit int

	showMarginal string
	showJSON     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored disaggregation results",
	Args:  cobra.NoArgs,
	RunE:  runResults,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a marginal distribution of a stored result",
	Long: `Print one marginal distribution of a stored disaggregation matrix.
Available marginals: ` + strings.Join(disagg.PMFNames(), "; "),
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	resultsCmd.Flags().IntVar(&filterSite, "site", 0, "Only results for this site id")
	resultsCmd.Flags().IntVar(&filterRlz, "rlz", 0, "Only results for this realization id")
	resultsCmd.Flags().StringVar(&filterIMT, "imt", "", "Only results for this intensity measure, e.g. SA(0.2)")
	resultsCmd.Flags().IntVar(&filterLimit, "limit", 0, "Maximum number of results (0 for all)")

	showCmd.Flags().StringVarP(&showMarginal, "marginal", "m", "Mag", "Marginal to print")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the whole result as JSON")

	rootCmd.AddCommand(resultsCmd, showCmd)
}

func openStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.DBPath)
}

func runResults(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	filter := storage.Filter{IMT: filterIMT, Limit: filterLimit}
	if cmd.Flags().Changed("site") {
		filter.SiteID = &filterSite
	}
	if cmd.Flags().Changed("rlz") {
		filter.RealizationID = &filterRlz
	}

	entries, err := store.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSITE\tRLZ\tIMT\tPOE\tIML\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%g\t%.4g\t%s\n",
			e.ID, e.Key.SiteID, e.Key.RealizationID, e.Key.IntensityMeasure(),
			e.Key.PoE, e.Key.IML, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	var marginal *models.Marginal
	for i := range res.Marginals {
		if res.Marginals[i].Name == showMarginal {
			marginal = &res.Marginals[i]
			break
		}
	}
	if marginal == nil {
		return fmt.Errorf("result %s has no marginal %q", res.ID, showMarginal)
	}

	fmt.Fprintf(out, "%s\n%s\n\n", res.Name, res.Key)
	return writeMarginal(out, res, marginal)
}

// writeMarginal prints one row per non-zero cell, labelled by bin ranges
func writeMarginal(out io.Writer, res *storage.Result, p *models.Marginal) error {
	labels := make([][]string, len(p.Axes))
	header := make([]string, 0, len(p.Axes)+1)
	for i, axis := range p.Axes {
		labels[i] = axisLabels(res, axis)
		header = append(header, strings.ToUpper(axis.String()))
	}
	header = append(header, "POE")

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	idx := make([]int, len(p.Shape))
	for off, v := range p.Values {
		rem := off
		for i := len(p.Shape) - 1; i >= 0; i-- {
			idx[i] = rem % p.Shape[i]
			rem /= p.Shape[i]
		}
		if v == 0 {
			continue
		}
		row := make([]string, 0, len(idx)+1)
		for i, j := range idx {
			row = append(row, labels[i][j])
		}
		row = append(row, fmt.Sprintf("%.6g", v))
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func axisLabels(res *storage.Result, axis models.Axis) []string {
	var edges []float64
	switch axis {
	case models.AxisTRT:
		return res.TRTNames
	case models.AxisMag:
		edges = res.Edges.Mag
	case models.AxisDist:
		edges = res.Edges.Dist
	case models.AxisLon:
		edges = res.Edges.Lon
	case models.AxisLat:
		edges = res.Edges.Lat
	case models.AxisEps:
		edges = res.Edges.Eps
	}
	labels := make([]string, 0, len(edges))
	for i := 1; i < len(edges); i++ {
		labels = append(labels, fmt.Sprintf("%g..%g", edges[i-1], edges[i]))
	}
	return labels
}
