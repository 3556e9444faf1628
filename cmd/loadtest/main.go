package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Config struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	ContextWords int
	Words        []string
}

const defaultWords = "the,cat,mat,dog,door,eye,asleep,zebra"

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	contextWords := flag.Int("context", 3, "context width sent with every query")
	words := flag.String("words", defaultWords, "comma-separated query words")
	flag.Parse()

	cfg := Config{
		BaseURL:      strings.TrimRight(*baseURL, "/"),
		Concurrency:  *concurrency,
		Duration:     *duration,
		ContextWords: *contextWords,
		Words:        splitWords(*words),
	}
	if len(cfg.Words) == 0 || cfg.Concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "need at least one word and one worker")
		os.Exit(2)
	}

	fmt.Println("=== Text Searcher Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Context:     %d\n", cfg.ContextWords)
	fmt.Printf("Words:       %d unique\n", len(cfg.Words))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !stats.WriteReport(os.Stdout, cfg.Duration) {
		fmt.Println()
		color.Yellow("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func splitWords(s string) []string {
	var words []string
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func searchURL(cfg Config, word string) string {
	return fmt.Sprintf("%s/api/v1/search?q=%s&context=%d", cfg.BaseURL, url.QueryEscape(word), cfg.ContextWords)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				word := cfg.Words[next%len(cfg.Words)]
				next++
				doSearch(ctx, client, searchURL(cfg, word), stats)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func doSearch(ctx context.Context, client *http.Client, rawURL string, stats *Stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		stats.RecordRequest(0, 0, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() == nil {
			stats.RecordRequest(time.Since(start), 0, 0, err)
		}
		return
	}
	defer resp.Body.Close()

	var body struct {
		TotalHits int `json:"total_hits"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			stats.RecordRequest(time.Since(start), resp.StatusCode, 0, err)
			return
		}
	}
	stats.RecordRequest(time.Since(start), resp.StatusCode, body.TotalHits, nil)
}
