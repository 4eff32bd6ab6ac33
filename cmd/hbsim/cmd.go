package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"student_25_hbbft/logging"
	"student_25_hbbft/simulation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "hbsim",
		Short: "Runs HoneyBadgerBFT epochs between simulated nodes",
		Long: "Runs HoneyBadgerBFT epochs between in-process nodes, some of which may be byzantine,\n" +
			"and prints the block the honest nodes agreed on in every epoch.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runFunc,
	}
	AddFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, _ []string) error {
	conf, v, err := ParseConfig(c.Flags())
	if err != nil {
		return err
	}
	logger := logging.NewBaseLogger(logging.NewConsoleWriter(os.Stderr),
		logging.ParseLevel(os.Getenv(logging.EnvLogLevel)))

	reg := prometheus.NewRegistry()
	if addr := v.GetString(MetricsKey); addr != "" {
		stop, err := serveMetrics(addr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	sim, err := simulation.New(conf, reg, logger)
	if err != nil {
		return err
	}
	results, err := sim.Run(c.Context())
	for _, res := range results {
		fmt.Fprintf(c.OutOrStdout(), "epoch %d: %d transactions from %d proposals, digest %x\n",
			res.Epoch, len(res.Block.Txs), included(res), res.Block.Digest)
	}
	return err
}

func included(res simulation.EpochResult) int {
	count := 0
	for _, o := range res.Outcomes {
		if o.Err == nil {
			count++
		}
	}
	return count
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	logger.Info().Msgf("serving metrics on %s", ln.Addr())
	return func() { _ = srv.Close() }, nil
}
