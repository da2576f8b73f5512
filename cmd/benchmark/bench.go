package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const (
	mockPort  = 9091
	appPort   = 8081
	benchKey  = "bench-key-12345"
	benchPath = "/api/ai"
)

var (
	streamChunks = [][]byte{
		[]byte(`data: {"choices":[{"delta":{"content":"Bench"}}]}` + "\n\n"),
		[]byte(`data: {"choices":[{"delta":{"content":"mark"}}]}` + "\n\n"),
		[]byte(`data: {"choices":[{"delta":{"content":" safe"}}]}` + "\n\n"),
		[]byte(`data: {"choices":[{"delta":{"content":" response"}}]}` + "\n\n"),
		[]byte("data: [DONE]\n\n"),
	}
	geminiResp = []byte(`{"candidates":[{"content":{"parts":[{"text":"Hello"}],"role":"model"}}]}`)
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 50, "Requests per second")
	providerID := flag.String("provider", "openai", "Upstream to emulate: openai (streaming) or gemini (buffered)")
	chaos := flag.Bool("chaos", false, "Simulate random client disconnections")
	flag.Parse()

	go startMockServer()

	fmt.Println("Building application...")
	buildCmd := exec.Command("go", "build", "-o", "bin/server", "./cmd/server")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	fmt.Println("Starting application...")
	cmd := exec.Command("./bin/server")
	cmd.Env = append(os.Environ(), benchEnv(*providerID)...)

	logFile, _ := os.Create("bench_server.log")
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}()

	waitForApp(fmt.Sprintf("http://localhost:%d/health", appPort))

	// stops the monitor and the chaos monkey
	done := make(chan struct{})

	go monitorResources(cmd.Process.Pid, done)

	fmt.Printf("Running %s benchmark: %s duration, %d req/s\n", *providerID, *duration, *rate)

	target := fmt.Sprintf("http://localhost:%d%s", appPort, benchPath)
	body := []byte(`{"messages":[{"role":"user","content":"Hello"}]}`)

	// the start timestamp lets the mock upstream report proxy overhead
	targeter := func(t *vegeta.Target) error {
		t.Method = http.MethodPost
		t.URL = target
		t.Body = body
		t.Header = http.Header{
			"Content-Type":      []string{"application/json"},
			"Authorization":     []string{"Bearer " + benchKey},
			"X-Benchmark-Start": []string{strconv.FormatInt(time.Now().UnixNano(), 10)},
		}
		return nil
	}

	if *chaos {
		fmt.Println("CHAOS MODE ENABLED: Starting Chaos Monkey sidecar...")
		go startChaosMonkey(target, min(max(*rate/10, 5), 50), done)
	}

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics

	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
	}
	metrics.Close()

	close(done)

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")
		seen := make(map[string]bool)
		for _, msg := range metrics.Errors {
			if len(seen) == 5 {
				break
			}
			if !seen[msg] {
				fmt.Println(msg)
				seen[msg] = true
			}
		}
	}
}

// benchEnv points the gateway at the mock upstream through the same
// environment variables a deployment would use.
func benchEnv(providerID string) []string {
	upstream := fmt.Sprintf("http://localhost:%d/v1", mockPort)
	return []string{
		"AI_PROVIDER=" + providerID,
		"AI_API_KEY=mock-key",
		"OPENAI_MODEL=gpt-3.5-turbo",
		"OPENAI_BASE_URL=" + upstream,
		"GEMINI_API_KEY=mock-key",
		"GEMINI_BASE_URL=" + upstream,
		"SITE_API_KEY=" + benchKey,
		fmt.Sprintf("SERVER_PORT=%d", appPort),
		"LOG_LEVEL=error",
		"METRICS_ENABLED=true",
		"RATE_LIMIT_ENABLED=false",
	}
}

func startChaosMonkey(url string, concurrency int, done chan struct{}) {
	fmt.Printf("Starting Chaos Monkey with %d concurrent disrupters (random disconnects 1-200ms)\n", concurrency)
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			client := &http.Client{
				Transport: &http.Transport{
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 100,
				},
			}

			payload := `{"messages":[{"role":"user","content":"Chaos Request"}]}`

			for {
				select {
				case <-done:
					return
				default:
				}

				timeout := time.Duration(rand.Intn(200)+1) * time.Millisecond

				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(payload))
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Authorization", "Bearer "+benchKey)

				resp, err := client.Do(req)
				if err == nil {
					_ = resp.Body.Close()
				}
				cancel()

				time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
			}
		}()
	}

	wg.Wait()
}

func startMockServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		reportOverhead(r)

		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)

		for _, chunk := range streamChunks {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			_, _ = w.Write(chunk)
			flusher.Flush()
		}
	})

	mux.HandleFunc("/v1/models/", func(w http.ResponseWriter, r *http.Request) {
		reportOverhead(r)
		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(geminiResp)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	_ = http.ListenAndServe(fmt.Sprintf(":%d", mockPort), mux)
}

func reportOverhead(r *http.Request) {
	startStr := r.Header.Get("X-Benchmark-Start")
	if startStr == "" {
		return
	}
	start, _ := strconv.ParseInt(startStr, 10, 64)
	// sample 1% of requests
	if rand.Intn(100) == 0 {
		fmt.Printf("DEBUG: Proxy Overhead: %v\n", time.Duration(time.Now().UnixNano()-start))
	}
}

// monitorResources samples the gateway's own /metrics endpoint and ps.
func monitorResources(pid int, done chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	fmt.Println("\n--- Resource Usage (/metrics + ps) ---")
	fmt.Printf("%-10s %-10s %-10s %-10s %-10s\n", "Time", "Heap(MB)", "RSS(MB)", "InFlight", "CPU(%)")

	url := fmt.Sprintf("http://127.0.0.1:%d/metrics", appPort)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			samples, err := scrape(url,
				"go_memstats_heap_inuse_bytes",
				"process_resident_memory_bytes",
				"ai_gateway_http_in_flight_requests",
			)
			if err != nil {
				fmt.Printf("DEBUG: monitorResources failed to scrape metrics: %v\n", err)
				continue
			}

			cpu := 0.0
			out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "%cpu").Output()
			if err == nil {
				lines := strings.Split(strings.TrimSpace(string(out)), "\n")
				if len(lines) >= 2 {
					cpu, _ = strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
				}
			}

			fmt.Printf("%-10s %-10.2f %-10.2f %-10.0f %-10.2f\n",
				time.Now().Format("15:04:05"),
				samples["go_memstats_heap_inuse_bytes"]/1024/1024,
				samples["process_resident_memory_bytes"]/1024/1024,
				samples["ai_gateway_http_in_flight_requests"],
				cpu,
			)
		}
	}
}

// scrape reads unlabelled gauge values from a Prometheus text endpoint.
func scrape(url string, names ...string) (map[string]float64, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	samples := make(map[string]float64, len(names))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || !want[fields[0]] {
			continue
		}
		if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
			samples[fields[0]] = v
		}
	}
	return samples, scanner.Err()
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("App timed out")
}
