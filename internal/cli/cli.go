// Package cli holds the small pieces of diagnostic output shared between
// the rdtpsend and rdtprecv commands.
package cli

import (
	"fmt"
	"io"
	"time"
)

// PrintRate writes a MiB/elapsed-seconds/Mib-per-second summary line,
// matching the throughput report the original sender and receiver both
// print at exit.
func PrintRate(w io.Writer, bytes uint64, elapsed time.Duration) {
	elapsedSec := elapsed.Seconds()
	if elapsedSec <= 0 {
		elapsedSec = 0.001
	}
	mib := float64(bytes) / (1024 * 1024)
	mbps := (mib * 8) / elapsedSec
	fmt.Fprintf(w, "%.2f MiB in %.2f s (%.2f Mib/s)\n", mib, elapsedSec, mbps)
}
