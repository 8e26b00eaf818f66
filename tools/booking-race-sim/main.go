package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

func main() {
	var (
		baseURL    = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking-service base url")
		providerID = flag.String("provider-id", getenv("PROVIDER_ID", ""), "provider to book")
		slot       = flag.String("slot", getenv("SLOT", ""), "RFC3339 start time of the contested slot")
		clients    = flag.Int("clients", 20, "concurrent booking requests")
		timeout    = flag.Duration("timeout", 10*time.Second, "per-request timeout")
	)
	flag.Parse()

	if strings.TrimSpace(*providerID) == "" {
		fatal("PROVIDER_ID is required")
	}
	if _, err := time.Parse(time.RFC3339, *slot); err != nil {
		fatal("SLOT must be RFC3339: " + err.Error())
	}
	if *clients <= 0 {
		fatal("clients must be positive")
	}

	client := &http.Client{Timeout: *timeout}
	url := strings.TrimRight(*baseURL, "/") + "/api/v1/public/book"

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
		failures []string
		start    = make(chan struct{})
	)
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]string{
				"provider_id":    *providerID,
				"client_id":      fmt.Sprintf("race-client-%d", n),
				"scheduled_time": *slot,
			})
			<-start
			code, err := post(client, url, body)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err.Error())
				return
			}
			statuses[code]++
		}(i)
	}
	began := time.Now()
	close(start)
	wg.Wait()

	fmt.Printf("requests=%d elapsed=%s\n", *clients, time.Since(began).Round(time.Millisecond))
	fmt.Printf("accepted=%d conflict=%d other=%d transport_errors=%d\n",
		statuses[http.StatusCreated], statuses[http.StatusConflict],
		*clients-statuses[http.StatusCreated]-statuses[http.StatusConflict]-len(failures), len(failures))
	for code, n := range statuses {
		if code != http.StatusCreated && code != http.StatusConflict {
			fmt.Printf("  status %d: %d\n", code, n)
		}
	}
	if statuses[http.StatusCreated] > 1 {
		fmt.Fprintln(os.Stderr, "double booking detected")
		os.Exit(2)
	}
}

func post(client *http.Client, url string, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
