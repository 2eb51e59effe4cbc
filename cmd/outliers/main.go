// Command outliers fits an unsupervised outlier detector on tabular data and
// reports the flagged rows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mizuaki/go-outliers/pkg/detectors"
	"github.com/mizuaki/go-outliers/pkg/detectors/abod"
	"github.com/mizuaki/go-outliers/pkg/detectors/ggm"
	"github.com/mizuaki/go-outliers/pkg/detectors/gmm"
	"github.com/mizuaki/go-outliers/pkg/detectors/iforest"
	"github.com/mizuaki/go-outliers/pkg/detectors/kde"
	"github.com/mizuaki/go-outliers/pkg/detectors/vmf"
	detio "github.com/mizuaki/go-outliers/pkg/io"
	"github.com/mizuaki/go-outliers/pkg/io/csv"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "outliers",
		Short:         "Unsupervised outlier detection on tabular data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDetectCmd())
	return root
}

type detectOptions struct {
	input    string
	family   string
	fpr      float64
	noHeader bool

	// family-specific knobs
	neighbors  int
	bandwidth  float64
	kernel     string
	alpha      float64
	components int
	covType    string
	trees      int
	seed       int64
}

func newDetectCmd() *cobra.Command {
	opts := &detectOptions{}
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Fit a detector on a CSV file and report outlier rows as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input CSV file (required)")
	cmd.Flags().StringVarP(&opts.family, "family", "f", "ggm", "detector family: abod, kde, ggm, gmm, vmf, iforest")
	cmd.Flags().Float64Var(&opts.fpr, "fpr", 0.01, "target false-positive rate")
	cmd.Flags().BoolVar(&opts.noHeader, "no-header", false, "input has no header row")
	cmd.Flags().IntVar(&opts.neighbors, "neighbors", 5, "abod: number of nearest neighbors")
	cmd.Flags().Float64Var(&opts.bandwidth, "bandwidth", 1.0, "kde: kernel bandwidth")
	cmd.Flags().StringVar(&opts.kernel, "kernel", "gaussian", "kde: kernel name")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0.01, "ggm: graphical-lasso penalty")
	cmd.Flags().IntVar(&opts.components, "components", 1, "gmm: number of mixture components")
	cmd.Flags().StringVar(&opts.covType, "covariance-type", "full", "gmm: covariance type")
	cmd.Flags().IntVar(&opts.trees, "trees", 100, "iforest: number of trees")
	cmd.Flags().Int64Var(&opts.seed, "seed", 42, "random seed")
	cobra.CheckErr(cmd.MarkFlagRequired("input"))

	return cmd
}

func runDetect(cmd *cobra.Command, opts *detectOptions) error {
	reader, err := csv.NewReader(opts.input, csv.WithHeader(!opts.noHeader), csv.WithStrict(true))
	if err != nil {
		return err
	}
	defer reader.Close()

	X, err := reader.Read()
	if err != nil {
		return err
	}

	detector, err := buildDetector(opts)
	if err != nil {
		return err
	}
	if err := detector.Fit(X); err != nil {
		return err
	}

	scores, err := detector.AnomalyScore(nil)
	if err != nil {
		return err
	}
	threshold := detector.(detectors.Thresholder).Threshold()
	labels := detectors.Classify(scores, threshold)

	writer := detio.NewJSONWriter(cmd.OutOrStdout())
	flagged := 0
	for i, label := range labels {
		if label == 1 {
			flagged++
			if err := writer.Write(detio.Result{
				Index:     i,
				Score:     scores[i],
				IsAnomaly: true,
				Features:  X[i],
			}); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d/%d rows flagged (threshold %.6g)\n", flagged, len(X), threshold)
	return nil
}

func buildDetector(opts *detectOptions) (detectors.Detector, error) {
	switch opts.family {
	case "abod":
		return abod.New(abod.WithFPR(opts.fpr), abod.WithNeighbors(opts.neighbors))
	case "kde":
		return kde.New(kde.WithFPR(opts.fpr), kde.WithBandwidth(opts.bandwidth), kde.WithKernel(opts.kernel))
	case "ggm":
		return ggm.New(ggm.WithFPR(opts.fpr), ggm.WithAlpha(opts.alpha))
	case "gmm":
		return gmm.New(
			gmm.WithFPR(opts.fpr),
			gmm.WithComponents(opts.components),
			gmm.WithCovarianceType(opts.covType),
			gmm.WithSeed(opts.seed),
		)
	case "vmf":
		return vmf.New(vmf.WithFPR(opts.fpr))
	case "iforest":
		return iforest.New(iforest.WithFPR(opts.fpr), iforest.WithTrees(opts.trees), iforest.WithSeed(opts.seed))
	}
	return nil, fmt.Errorf("unknown detector family: %s", opts.family)
}
