package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int
	failures  int
}

func newRecorder() *recorder {
	return &recorder{
		latencies: make([]time.Duration, 0, 100000),
		statuses:  make(map[int]int),
	}
}

// record notes one request; err is a transport failure with no status.
func (r *recorder) record(elapsed time.Duration, status int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		return
	}
	r.latencies = append(r.latencies, elapsed)
	r.statuses[status]++
}

type Report struct {
	Total, Success, Errors int
	RPS                    float64
	Min, Avg, Max          time.Duration
	P50, P90, P95, P99     time.Duration
	StdDev                 time.Duration
	Statuses               map[int]int
}

func (r *recorder) report(duration time.Duration) Report {
	r.mu.Lock()
	latencies := slices.Clone(r.latencies)
	statuses := make(map[int]int, len(r.statuses))
	for code, n := range r.statuses {
		statuses[code] = n
	}
	failures := r.failures
	r.mu.Unlock()

	rep := Report{Total: len(latencies) + failures, Errors: failures, Statuses: statuses}
	for code, n := range statuses {
		if code >= 200 && code < 300 {
			rep.Success += n
		} else {
			rep.Errors += n
		}
	}
	if duration > 0 {
		rep.RPS = float64(rep.Total) / duration.Seconds()
	}
	if len(latencies) == 0 {
		return rep
	}

	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	rep.Avg = sum / time.Duration(len(latencies))
	var sq float64
	for _, l := range latencies {
		d := float64(l - rep.Avg)
		sq += d * d
	}
	rep.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	rep.Min, rep.Max = latencies[0], latencies[len(latencies)-1]
	rep.P50 = percentile(latencies, 50)
	rep.P90 = percentile(latencies, 90)
	rep.P95 = percentile(latencies, 95)
	rep.P99 = percentile(latencies, 99)
	return rep
}

func (rep Report) print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", rep.Total)
	fmt.Fprintf(w, "Successful:      %d\n", rep.Success)
	fmt.Fprintf(w, "Errors:          %d\n", rep.Errors)
	if rep.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(rep.Errors)/float64(rep.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", rep.RPS)
	}
	if rep.Max > 0 {
		fmt.Fprintln(w, "\n=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", rep.Min)
		fmt.Fprintf(w, "Avg:    %s\n", rep.Avg)
		fmt.Fprintf(w, "P50:    %s\n", rep.P50)
		fmt.Fprintf(w, "P90:    %s\n", rep.P90)
		fmt.Fprintf(w, "P95:    %s\n", rep.P95)
		fmt.Fprintf(w, "P99:    %s\n", rep.P99)
		fmt.Fprintf(w, "Max:    %s\n", rep.Max)
		fmt.Fprintf(w, "StdDev: %s\n", rep.StdDev)
	}
	fmt.Fprintln(w, "\n=== Status Codes ===")
	codes := make([]int, 0, len(rep.Statuses))
	for code := range rep.Statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, rep.Statuses[code])
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
