// Command rdtprecv listens for an RDTP sender and writes the incoming file
// to disk.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/kasader/rdtp/internal/cli"
	"github.com/kasader/rdtp/internal/frame"
	"github.com/kasader/rdtp/internal/metrics"
	"github.com/kasader/rdtp/internal/receiver"
	"github.com/kasader/rdtp/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("rdtprecv", flag.ContinueOnError)
	metricsAddr := fs.String("metrics-addr", "", "optional host:port to expose Prometheus metrics on")

	var args []string
	rest := os.Args[1:]
	for {
		if err := fs.Parse(rest); err != nil {
			os.Exit(2)
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		args = append(args, rest[0])
		rest = rest[1:]
	}
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage:\n  rdtprecv <port> <output_file> [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		os.Exit(2)
	}
	portStr, outPath := args[0], args[1]

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.Wrap(err, "invalid port")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "open output file")
	}
	defer out.Close()
	sink := bufio.NewWriter(out)

	ep, err := transport.Listen(port)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	defer ep.Close()

	fmt.Fprintf(os.Stderr, "RDTP receiver listening on port %d\n", port)

	reg := metrics.New()
	if *metricsAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := reg.ServeUntil(ctx, *metricsAddr); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	core := receiver.New(ep, sink)
	core.SetFrameObserver(func(t frame.Type) { reg.ObserveFrame(t.String()) })
	start := time.Now()
	stats, err := core.Run()
	elapsed := time.Since(start)
	if err != nil {
		return errors.Wrap(err, "transfer")
	}

	reg.AddBytes(metrics.RoleReceiver, stats.BytesWritten)
	reg.SetThroughput(stats.BytesWritten, elapsed)

	fmt.Fprintln(os.Stderr, "RDTP receiver finished.")
	fmt.Fprintf(os.Stderr, "  bytes written: %d\n", stats.BytesWritten)
	fmt.Fprint(os.Stderr, "  rate: ")
	cli.PrintRate(os.Stderr, stats.BytesWritten, elapsed)
	return nil
}
