// Command loadtest drives concurrent queries against a running searcher and
// reports throughput, latency percentiles and status codes.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -queries queries.txt -concurrency 32
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var defaultQueries = []string{
	"machine learning",
	"inverted index",
	"search engine",
	"new york city",
	"python tutorial",
	"cat dog",
	"weather forecast",
	"open source software",
	"recipe chicken",
	"history of computing",
	"AND university research",
	"distributed systems",
}

type stats struct {
	total      atomic.Int64
	failed     atomic.Int64
	zeroResult atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func (s *stats) record(d time.Duration, code int, hits int, err error) {
	s.total.Add(1)
	if err != nil || code < 200 || code >= 300 {
		s.failed.Add(1)
	} else if hits == 0 {
		s.zeroResult.Add(1)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.latencies = append(s.latencies, d)
		s.codes[code]++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queriesPath := flag.String("queries", "", "file with one query per line (defaults to a built-in list)")
	mode := flag.String("mode", "", "query mode parameter (or, and)")
	limit := flag.Int("limit", 10, "results per query")
	flag.Parse()

	queries := defaultQueries
	if *queriesPath != "" {
		loaded, err := readQueries(*queriesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n", len(queries))
	fmt.Println()

	s := run(*baseURL, queries, *mode, *limit, *concurrency, *duration)
	report(s, *duration)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return out, nil
}

func searchURL(base, query, mode string, limit int) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("limit", fmt.Sprint(limit))
	if mode != "" {
		v.Set("mode", mode)
	}
	return base + "/api/v1/search?" + v.Encode()
}

func run(base string, queries []string, mode string, limit, concurrency int, d time.Duration) *stats {
	s := &stats{codes: make(map[int]int64)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Go(func() {
			for i := w; ctx.Err() == nil; i++ {
				target := searchURL(base, queries[i%len(queries)], mode, limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					s.record(0, 0, 0, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						s.record(time.Since(start), 0, 0, err)
					}
					continue
				}
				var body struct {
					TotalHits int `json:"total_hits"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()
				s.record(time.Since(start), resp.StatusCode, body.TotalHits, nil)
			}
		})
	}
	wg.Wait()
	return s
}

func percentile(sorted []time.Duration, pct int) time.Duration {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func report(s *stats, d time.Duration) {
	total := s.total.Load()
	failed := s.failed.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Failed:          %d\n", failed)
	fmt.Printf("Zero Results:    %d\n", s.zeroResult.Load())
	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the searcher running?")
		return
	}
	fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/d.Seconds())

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	slices.Sort(codes)
	s.mu.Lock()
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.codes[code])
	}
	s.mu.Unlock()
}
