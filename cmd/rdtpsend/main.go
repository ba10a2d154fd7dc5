// Command rdtpsend streams a file to an RDTP receiver over UDP.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/kasader/rdtp/internal/cli"
	"github.com/kasader/rdtp/internal/config"
	"github.com/kasader/rdtp/internal/frame"
	"github.com/kasader/rdtp/internal/metrics"
	"github.com/kasader/rdtp/internal/sender"
	"github.com/kasader/rdtp/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage:\n  rdtpsend <host> <port> <file_to_send> [flags]\n\nFlags:\n")
	fs.PrintDefaults()
}

func run() error {
	fs := flag.NewFlagSet("rdtpsend", flag.ContinueOnError)
	window := fs.Int("w", -1, "sliding window size in packets (default 64)")
	timeoutMS := fs.Int("t", 0, "retransmission timeout in milliseconds (default 200)")
	mss := fs.Int("m", -1, "max payload bytes per DATA frame (default 1000)")
	configPath := fs.String("config", "", "optional YAML config file (window/timeout_ms/mss)")
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
	if len(args) != 3 {
		usage(fs)
		os.Exit(2)
	}
	host, port, filePath := args[0], args[1], args[2]

	file, err := config.Load(*configPath)
	if err != nil {
		return errors.Wrap(err, "configuration")
	}

	var timeout time.Duration
	if *timeoutMS > 0 {
		timeout = time.Duration(*timeoutMS) * time.Millisecond
	}

	cfg, err := config.Resolved(file, *window, *mss, timeout)
	if err != nil {
		return errors.Wrap(err, "configuration")
	}

	in, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, "open input file")
	}
	defer in.Close()

	ep, err := transport.DialRemote(host, port)
	if err != nil {
		return errors.Wrap(err, "dial peer")
	}
	defer ep.Close()

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

	core := sender.New(ep, bufio.NewReader(in), cfg)
	core.SetFrameObserver(func(t frame.Type) { reg.ObserveFrame(t.String()) })
	start := time.Now()
	stats, err := core.Run()
	elapsed := time.Since(start)
	if err != nil {
		return errors.Wrap(err, "transfer")
	}

	reg.AddBytes(metrics.RoleSender, stats.PayloadBytes)
	reg.AddRetransmits(stats.Retransmits)
	reg.SetThroughput(stats.PayloadBytes, elapsed)

	fmt.Fprintln(os.Stderr, "RDTP sender finished.")
	fmt.Fprintf(os.Stderr, "  payload bytes read: %d\n", stats.PayloadBytes)
	fmt.Fprintf(os.Stderr, "  retransmits: %d\n", stats.Retransmits)
	fmt.Fprint(os.Stderr, "  rate: ")
	cli.PrintRate(os.Stderr, stats.PayloadBytes, elapsed)
	return nil
}
