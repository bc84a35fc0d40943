// Benchmark tool for testing Fraudscope against a labeled transaction CSV.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/creditcard.csv -url http://localhost:8080
//
// This tool:
//  1. Reads a CSV with a Class column (1 = fraud)
//  2. Uploads it to /predict_csv, repeatedly and concurrently
//  3. Compares the returned Prediction column with Class
//  4. Prints the confusion matrix, precision, recall, F1 and latency
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/opensource-finance/fraudscope/internal/analytics"
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/report"
	"github.com/opensource-finance/fraudscope/internal/table"
)

// Metrics tracks benchmark results
type Metrics struct {
	TotalRequests int64
	TotalErrors   int64

	ProcessingTimeMs int64
	MaxLatencyMs     int64

	mu       sync.Mutex
	response []byte // last successful response body
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to a labeled CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Fraudscope base URL")
	limit := flag.Int("limit", 10000, "Maximum rows per upload (0 = all)")
	requests := flag.Int("requests", 10, "Number of uploads to send")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each upload result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/creditcard.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("FRAUDSCOPE BENCHMARK")
	fmt.Printf("\nCSV File:       %s\n", *csvPath)
	fmt.Printf("Fraudscope URL: %s\n", *baseURL)
	fmt.Printf("Requests:       %d\n", *requests)
	fmt.Printf("Workers:        %d\n", *workers)
	fmt.Printf("Row Limit:      %d\n", *limit)
	fmt.Println()

	// Check Fraudscope is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Fraudscope not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Fraudscope is running:")
		fmt.Println("  go run ./cmd/fraudscope serve")
		os.Exit(1)
	}
	fmt.Println("Fraudscope is healthy")

	// Read labeled data
	payload, rows, err := readLabeledCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d rows (%d bytes per upload)\n", rows, len(payload))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(payload, filepath.Base(*csvPath), *baseURL, *requests, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readLabeledCSV reads the file, keeps at most limit rows and re-encodes it.
func readLabeledCSV(path string, limit int) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	t, err := table.Parse(data)
	if err != nil {
		return nil, 0, err
	}
	if !t.HasColumn(domain.ColumnClass) {
		return nil, 0, fmt.Errorf("no %s column", domain.ColumnClass)
	}

	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf, t.Columns, rows); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(rows), nil
}

func runBenchmark(payload []byte, filename, baseURL string, requests, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan int, requests)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for n := range work {
				start := time.Now()
				body, err := uploadCSV(client, baseURL, filename, payload)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalRequests, 1)
				for {
					prev := atomic.LoadInt64(&metrics.MaxLatencyMs)
					if elapsed <= prev || atomic.CompareAndSwapInt64(&metrics.MaxLatencyMs, prev, elapsed) {
						break
					}
				}

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: upload %d -> %v\n", n, err)
					}
					continue
				}

				metrics.mu.Lock()
				metrics.response = body
				metrics.mu.Unlock()

				if verbose {
					fmt.Printf("upload %-4d | %6d ms | %d bytes\n", n, elapsed, len(body))
				}
			}
		}()
	}

	// Send work
	for i := 0; i < requests; i++ {
		work <- i
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func uploadCSV(client *http.Client, baseURL, filename string, payload []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/predict_csv", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(out))
	}
	return out, nil
}

// evaluateResponse rebuilds the scored table from a /predict_csv response
// and compares Prediction with Class.
func evaluateResponse(data []byte) (*domain.Evaluation, error) {
	t, err := table.Parse(data)
	if err != nil {
		return nil, err
	}

	predIdx := t.ColumnIndex(domain.ColumnPrediction)
	confIdx := t.ColumnIndex(domain.ColumnConfidence)
	if predIdx < 0 || confIdx < 0 {
		return nil, fmt.Errorf("response lacks %s or %s", domain.ColumnPrediction, domain.ColumnConfidence)
	}

	rows := make([]domain.ScoredRow, len(t.Rows))
	for i, rec := range t.Rows {
		prediction, err := strconv.Atoi(rec[predIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad prediction %q", i, rec[predIdx])
		}
		confidence, err := strconv.ParseFloat(rec[confIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad confidence %q", i, rec[confIdx])
		}
		rows[i] = domain.ScoredRow{
			Index:      i,
			Values:     rec,
			Prediction: prediction,
			Confidence: confidence,
		}
	}

	return analytics.BuildEvaluation(domain.NewScoredTable(t.Columns, rows))
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	perf := tablewriter.NewWriter(os.Stdout)
	perf.SetHeader([]string{"Metric", "Value"})
	perf.SetAlignment(tablewriter.ALIGN_LEFT)
	perf.Append([]string{"Uploads", strconv.FormatInt(m.TotalRequests, 10)})
	perf.Append([]string{"Errors", strconv.FormatInt(m.TotalErrors, 10)})
	perf.Append([]string{"Total Duration", duration.Round(time.Millisecond).String()})
	if m.TotalRequests > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalRequests)
		perf.Append([]string{"Avg Latency", fmt.Sprintf("%.2f ms", avgMs)})
		perf.Append([]string{"Max Latency", fmt.Sprintf("%d ms", m.MaxLatencyMs)})
		perf.Append([]string{"Throughput", fmt.Sprintf("%.2f uploads/sec", float64(m.TotalRequests)/duration.Seconds())})
	}
	perf.Render()

	if m.response == nil {
		fmt.Println("\nNo successful upload; skipping evaluation.")
		return
	}

	eval, err := evaluateResponse(m.response)
	if err != nil {
		fmt.Printf("\nERROR: Failed to evaluate response: %v\n", err)
		return
	}

	fmt.Println("\nDETECTION METRICS")
	report.WriteEvaluation(os.Stdout, eval)

	if eval != nil {
		if fraud := eval.Confusion.TP() + eval.Confusion.FN(); fraud > 0 {
			fmt.Printf("\nFraud Detected: %d / %d\n", eval.Confusion.TP(), fraud)
		}
		if legit := eval.Confusion.TN() + eval.Confusion.FP(); legit > 0 {
			fmt.Printf("False Alarms:   %d / %d\n", eval.Confusion.FP(), legit)
		}
	}

	fmt.Println()
}
