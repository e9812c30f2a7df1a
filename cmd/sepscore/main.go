package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/hashicorp/go-multierror"
	"github.com/pzelasko/asteroid/pkg/losses"
	"github.com/pzelasko/asteroid/pkg/signal"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	metricFlag := pflag.String("metric", "sisdr", "pairwise metric: sisdr, sdsdr, snr or mse")
	estimateFlags := pflag.StringSlice("estimate", nil, "raw float32-LE estimate file (repeat per source)")
	referenceFlags := pflag.StringSlice("reference", nil, "raw float32-LE reference file (repeat per source)")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	if len(*estimateFlags) == 0 || len(*estimateFlags) != len(*referenceFlags) {
		panic(fmt.Errorf("expected the same non-zero number of --estimate and --reference files, got %d and %d",
			len(*estimateFlags), len(*referenceFlags)))
	}

	estimates, err := loadSources(*estimateFlags)
	assertNoError(err)
	references, err := loadSources(*referenceFlags)
	assertNoError(err)

	pairwise, err := pairwiseMetric(*metricFlag)
	assertNoError(err)

	costs, err := pairwise(estimates, references)
	assertNoError(err)
	logger.Debugf(ctx, "cost matrix: %s", spew.Sdump(costs[0]))

	perms, totals, err := losses.BestPermutations(costs, nil)
	assertNoError(err)

	fmt.Printf("metric: %s\n", *metricFlag)
	fmt.Printf("best permutation: %v\n", perms[0])
	fmt.Printf("loss: %v\n", totals[0])
}

func pairwiseMetric(name string) (losses.Pairwise, error) {
	switch name {
	case "sisdr":
		return losses.PairwiseNegSISDR, nil
	case "sdsdr":
		return losses.PairwiseNegSDSDR, nil
	case "snr":
		return losses.PairwiseNegSNR, nil
	case "mse":
		return losses.PairwiseMSE, nil
	}
	return nil, fmt.Errorf("unknown metric %q: valid choices are sisdr, sdsdr, snr, mse", name)
}

// loadSources reads each file as raw little-endian float32 samples and
// stacks them into a batch of one element, truncating every source to
// the shortest file.
func loadSources(paths []string) (signal.SourceBatch, error) {
	var mErr *multierror.Error
	sources := make([][]float64, 0, len(paths))
	shortest := math.MaxInt
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to read %q: %w", path, err))
			continue
		}
		samples := make([]float64, len(raw)/4)
		for i := range samples {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		if len(samples) < shortest {
			shortest = len(samples)
		}
		sources = append(sources, samples)
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return nil, err
	}
	for i := range sources {
		sources[i] = sources[i][:shortest]
	}
	return signal.SourceBatch{sources}, nil
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
