package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/pzelasko/asteroid/pkg/models"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	inputType := pflag.String("input-type", "mag", "masker input features: mag, reim or cat")
	outputType := pflag.String("output-type", "mag", "mask type: mag or reim")
	fbType := pflag.String("fb-type", "stft", "filterbank type")
	nFilters := pflag.Int("n-filters", 512, "number of filterbank filters")
	stride := pflag.Int("stride", 256, "filterbank stride")
	kernelSize := pflag.Int("kernel-size", 512, "filterbank kernel size")
	sampleRate := pflag.Float64("sample-rate", 16000, "sample rate of the input")
	seed := pflag.Int64("seed", 0, "weight initialization seed")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	if pflag.NArg() != 2 {
		panic(fmt.Errorf("expected exactly two arguments: <input-file> <output-file>"))
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg := models.DefaultDeMaskConfig()
	cfg.InputType = *inputType
	cfg.OutputType = *outputType
	cfg.FBType = *fbType
	cfg.NFilters = *nFilters
	cfg.Stride = *stride
	cfg.KernelSize = *kernelSize
	cfg.SampleRate = *sampleRate
	cfg.Seed = *seed

	model, err := models.NewDeMask(cfg)
	assertNoError(err)
	logger.Debugf(ctx, "model args: %v", model.ModelArgs())

	raw, err := os.ReadFile(pflag.Arg(0))
	assertNoError(err)
	wav := make([]float64, len(raw)/4)
	for i := range wav {
		wav[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}

	enhanced, err := model.Enhance(ctx, wav)
	assertNoError(err)

	out := make([]byte, len(enhanced)*4)
	for i, v := range enhanced {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	assertNoError(os.WriteFile(pflag.Arg(1), out, 0o644))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
