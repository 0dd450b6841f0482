// Command capacity_check fires concurrent booking requests at one teacher
// slot and reports how many were admitted. It exits non-zero when more
// bookings were created than the expected capacity.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type attempt struct {
	Index    int
	Status   int
	Code     string
	Duration time.Duration
	Error    error
}

type bookingBody struct {
	TeacherID     string  `json:"teacherId"`
	TestCategory  string  `json:"testCategory"`
	TestSubtype   string  `json:"testSubtype,omitempty"`
	StartDateTime string  `json:"startDateTime"`
	Receipt       receipt `json:"receipt"`
}

type receipt struct {
	Path string `json:"path"`
	Mime string `json:"mime"`
}

func main() {
	var (
		base       string
		tokensPath string
		teacherID  string
		start      string
		category   string
		subtype    string
		receiptKey string
		capacity   int
		timeout    time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&tokensPath, "tokens", "", "File with one student bearer token per line")
	flag.StringVar(&teacherID, "teacher", "", "Teacher ID")
	flag.StringVar(&start, "start", "", "Slot start (RFC3339)")
	flag.StringVar(&category, "category", "TOLC", "Test category")
	flag.StringVar(&subtype, "subtype", "", "Test subtype")
	flag.StringVar(&receiptKey, "receipt", "receipts/load.pdf", "Receipt path attached to every request")
	flag.IntVar(&capacity, "capacity", 0, "Expected slot capacity; 0 skips the check")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if teacherID == "" || start == "" || tokensPath == "" {
		log.Fatal("-teacher, -start and -tokens are required")
	}
	if _, err := time.Parse(time.RFC3339, start); err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	tokens, err := loadTokens(tokensPath)
	if err != nil {
		log.Fatalf("failed to load tokens: %v", err)
	}

	payload, err := json.Marshal(bookingBody{
		TeacherID:     teacherID,
		TestCategory:  strings.ToUpper(category),
		TestSubtype:   subtype,
		StartDateTime: start,
		Receipt:       receipt{Path: receiptKey, Mime: "application/pdf"},
	})
	if err != nil {
		log.Fatalf("encode payload: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	url := strings.TrimRight(base, "/") + "/bookings"
	results := make([]attempt, len(tokens))

	var wg sync.WaitGroup
	gate := make(chan struct{})
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			<-gate
			results[i] = book(client, url, token, payload)
			results[i].Index = i
		}(i, token)
	}
	close(gate)
	wg.Wait()

	created := printReport(results)
	if capacity > 0 && created > capacity {
		fmt.Printf("Overbooked: %d created for capacity %d\n", created, capacity)
		os.Exit(1)
	}
}

func loadTokens(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var tokens []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokens in %s", path)
	}
	return tokens, nil
}

func book(client *http.Client, url, token string, payload []byte) attempt {
	if client == nil {
		return attempt{Error: errors.New("nil client")}
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return attempt{Error: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	began := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return attempt{Error: err, Duration: time.Since(began)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	out := attempt{Status: resp.StatusCode, Duration: time.Since(began), Error: err}

	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		out.Code = envelope.Error.Code
	}
	return out
}

func printReport(results []attempt) int {
	fmt.Println("Capacity Check Report")
	fmt.Println("=====================")
	counts := map[string]int{}
	created := 0
	for _, res := range results {
		label := fmt.Sprintf("%d", res.Status)
		switch {
		case res.Error != nil:
			label = "ERROR"
			fmt.Printf("[ERROR] #%d %v\n", res.Index, res.Error)
		case res.Status == http.StatusCreated:
			created++
		case res.Code != "":
			label += " " + res.Code
		}
		counts[label]++
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Printf("  %-28s %d\n", label, counts[label])
	}
	fmt.Printf("Attempts: %d, Created: %d\n", len(results), created)
	return created
}
