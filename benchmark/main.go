// Package main provides a performance benchmarking tool for the xray CLI.
// It measures end-to-end analysis time across repositories of different sizes,
// once with a fresh clone per run and once reusing a kept clone,
// and writes CSV output for performance analysis and documentation.
//
// Prerequisites:
// - xray binary installed and available in PATH
// - git and gh available in PATH (gh may be unauthenticated; pull request stages are then skipped)
//
// Usage: go run benchmark/main.go [work-dir]
//
//	work-dir: Scratch directory for clones and results
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// BenchmarkResult holds the average fresh-clone time and the average warm time of one repository.
type BenchmarkResult struct {
	Repository string
	Months     int
	FreshTime  string
	WarmTime   string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	WorkDir   string
	Timeout   time.Duration
	Months    int
	FreshRuns int
	WarmRuns  int
	TestRepos []string
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [work-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		WorkDir:   os.Args[1],
		Timeout:   10 * time.Minute,
		Months:    6,
		FreshRuns: 2,
		WarmRuns:  3,
		TestRepos: []string{
			"https://github.com/go-chi/chi",
			"https://github.com/spf13/cobra",
			"https://github.com/prometheus/client_golang",
		},
	}

	if err := checkPrerequisites(config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	results := runBenchmarks(config)

	if err := saveResults(config.WorkDir, results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// checkPrerequisites verifies that the binaries exist and the work directory is usable
func checkPrerequisites(config BenchmarkConfig) error {
	for _, bin := range []string{"xray", "git"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s binary not found in PATH", bin)
		}
	}
	return os.MkdirAll(config.WorkDir, 0o755)
}

// runBenchmarks executes the fresh and warm phases for every repository
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d repos, %v timeout, %d months, fresh: %d runs, warm: %d runs\n",
		len(config.TestRepos), config.Timeout, config.Months, config.FreshRuns, config.WarmRuns)

	for _, repoURL := range config.TestRepos {
		name := filepath.Base(repoURL)
		fmt.Printf("Benchmarking %s\n", name)

		cloneDir := filepath.Join(config.WorkDir, "clones", name)
		_ = os.RemoveAll(cloneDir)

		fmt.Printf("  Fresh phase (%d runs)\n", config.FreshRuns)
		fresh := runBenchmark(config, repoURL, cloneDir, false, config.FreshRuns)

		// One untimed run leaves the clone in place for the warm phase
		runBenchmark(config, repoURL, cloneDir, true, 1)

		fmt.Printf("  Warm phase (%d runs)\n", config.WarmRuns)
		warm := runBenchmark(config, repoURL, cloneDir, true, config.WarmRuns)

		result := BenchmarkResult{
			Repository: name,
			Months:     config.Months,
			FreshTime:  average(fresh),
			WarmTime:   average(warm),
		}
		fmt.Printf("  Fresh average: %s, Warm average: %s\n", result.FreshTime, result.WarmTime)
		results = append(results, result)
	}

	return results
}

// runBenchmark runs xray analyze numRuns times and returns the successful durations in seconds
func runBenchmark(config BenchmarkConfig, repoURL, cloneDir string, keepClones bool, numRuns int) []float64 {
	args := []string{
		"analyze", repoURL,
		"--months", fmt.Sprint(config.Months),
		"--cache-backend", "none",
		"--ai-provider", "none",
		"--clone-dir", cloneDir,
		fmt.Sprintf("--keep-clones=%t", keepClones),
	}

	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()

		cmd := exec.Command("xray", args...)

		done := make(chan bool)
		var output []byte
		var cmdErr error

		go func() {
			output, cmdErr = cmd.CombinedOutput()
			done <- true
		}()

		select {
		case <-done:
			if cmdErr == nil && isSuccess(output) {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			_ = cmd.Process.Kill()
			<-done
		}
	}
	return times
}

func average(times []float64) string {
	if len(times) == 0 {
		return "TIMEOUT"
	}
	var sum float64
	for _, t := range times {
		sum += t
	}
	return fmt.Sprintf("%.3fs", sum/float64(len(times)))
}

// isSuccess checks if command output indicates successful completion
func isSuccess(output []byte) bool {
	return strings.Contains(string(output), "Analysis completed in")
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(dir string, results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("xray_benchmark_%s.csv", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"repo", "months", "fresh_avg", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, result := range results {
		if err := writer.Write([]string{result.Repository, fmt.Sprint(result.Months), result.FreshTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, result := range results {
		fmt.Printf("  %-16s: Fresh: %s, Warm: %s\n", result.Repository, result.FreshTime, result.WarmTime)
	}
}
