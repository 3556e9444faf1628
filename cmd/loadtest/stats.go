package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

// Colours switch off automatically when stdout is not a terminal.
var (
	heading  = color.New(color.Bold).SprintFunc()
	goodCode = color.New(color.FgGreen).SprintFunc()
	badCode  = color.New(color.FgRed).SprintFunc()
)

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	zeroResults   atomic.Int64
	windows       atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

// RecordRequest records one response. hits is the total_hits field of a
// successful search response.
func (s *Stats) RecordRequest(duration time.Duration, statusCode, hits int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
		s.windows.Add(int64(hits))
		if hits == 0 {
			s.zeroResults.Add(1)
		}
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	s.statusCodes[statusCode]++
	s.statusCodesMu.Unlock()
}

// WriteReport prints a summary and reports whether any request completed.
func (s *Stats) WriteReport(w io.Writer, duration time.Duration) bool {
	total := s.totalRequests.Load()
	success := s.successCount.Load()
	failed := s.errorCount.Load()

	fmt.Fprintln(w, heading("=== Results ==="))
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", failed)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Fprintf(w, "Zero Results:    %d\n", s.zeroResults.Load())
		fmt.Fprintf(w, "Windows/search:  %.2f\n", float64(s.windows.Load())/float64(success))
	}

	s.latenciesMu.Lock()
	latencies := slices.Clone(s.latencies)
	s.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, heading("=== Latency ==="))
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l) - float64(avg)
			sumSquared += diff * diff
		}
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, heading("=== Status Codes ==="))
	s.statusCodesMu.Lock()
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		paint := goodCode
		if code >= 400 {
			paint = badCode
		}
		fmt.Fprintf(w, "  %s: %d\n", paint(code), s.statusCodes[code])
	}
	s.statusCodesMu.Unlock()

	return total > 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
