package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Stats accumulates per-request outcomes from every worker.
type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	zeroResults   atomic.Int64
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

// RecordRequest counts one request. resp is the decoded body of a 2xx
// response, or nil.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, resp *searchResponse, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if resp != nil {
		if resp.Cached {
			s.cacheHits.Add(1)
		}
		if resp.Total == 0 {
			s.zeroResults.Add(1)
		}
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	s.statusCodes[statusCode]++
	s.statusCodesMu.Unlock()
}

// Report writes the summary and returns false when no request completed.
func (s *Stats) Report(w io.Writer, duration time.Duration) bool {
	total := s.totalRequests.Load()
	success := s.successCount.Load()
	errs := s.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errs)
	fmt.Fprintf(w, "Cache Hits:      %d\n", s.cacheHits.Load())
	fmt.Fprintf(w, "Zero Results:    %d\n", s.zeroResults.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
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
		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	s.statusCodesMu.Lock()
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}
	s.statusCodesMu.Unlock()

	return total > 0
}

// percentile picks the nearest-rank p-th percentile of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
