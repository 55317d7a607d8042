package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the scraping engine and its HTTP
// surface. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	fetchAttempts  = make(map[fetchKey]int64)
	pillsDetected  = make(map[string]int64)
	visionExtracts = make(map[string]int64)
	jobsFinished   = make(map[string]int64)
	urlsProcessed  = make(map[string]int64)

	retentionJobsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type fetchKey struct {
	Method  string
	Success string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordFetchAttempt counts one cascade attempt by fetcher method.
func RecordFetchAttempt(method string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	fetchAttempts[fetchKey{Method: method, Success: boolLabel(success)}]++
}

// RecordPill counts a detected poison pill by kind.
func RecordPill(kind string) {
	mu.Lock()
	defer mu.Unlock()
	pillsDetected[kind]++
}

// RecordVisionExtract counts vision fallback calls by outcome.
func RecordVisionExtract(success bool) {
	mu.Lock()
	defer mu.Unlock()
	visionExtracts[boolLabel(success)]++
}

// RecordURLProcessed counts one finished URL by terminal status
// (completed, failed, skipped).
func RecordURLProcessed(status string) {
	mu.Lock()
	defer mu.Unlock()
	urlsProcessed[status]++
}

// RecordJobFinished counts one job reaching a terminal status.
func RecordJobFinished(status string) {
	mu.Lock()
	defer mu.Unlock()
	jobsFinished[status]++
}

// RecordRetentionJobs increments the counter of jobs deleted by TTL.
func RecordRetentionJobs(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsDeleted += deleted
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP scrapeforge_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE scrapeforge_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "scrapeforge_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP scrapeforge_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE scrapeforge_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP scrapeforge_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE scrapeforge_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "scrapeforge_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "scrapeforge_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	b.WriteString("# HELP scrapeforge_fetch_attempts_total Total cascade fetch attempts by method\n")
	b.WriteString("# TYPE scrapeforge_fetch_attempts_total counter\n")

	var fetchKeys []fetchKey
	for k := range fetchAttempts {
		fetchKeys = append(fetchKeys, k)
	}
	sort.Slice(fetchKeys, func(i, j int) bool {
		if fetchKeys[i].Method != fetchKeys[j].Method {
			return fetchKeys[i].Method < fetchKeys[j].Method
		}
		return fetchKeys[i].Success < fetchKeys[j].Success
	})

	for _, k := range fetchKeys {
		v := fetchAttempts[k]
		fmt.Fprintf(&b, "scrapeforge_fetch_attempts_total{method=\"%s\",success=\"%s\"} %d\n",
			k.Method, k.Success, v)
	}

	b.WriteString("# HELP scrapeforge_poison_pills_total Total poison pills detected by kind\n")
	b.WriteString("# TYPE scrapeforge_poison_pills_total counter\n")

	var pillKinds []string
	for k := range pillsDetected {
		pillKinds = append(pillKinds, k)
	}
	sort.Strings(pillKinds)
	for _, k := range pillKinds {
		fmt.Fprintf(&b, "scrapeforge_poison_pills_total{kind=\"%s\"} %d\n", k, pillsDetected[k])
	}

	b.WriteString("# HELP scrapeforge_vision_extracts_total Total vision fallback calls\n")
	b.WriteString("# TYPE scrapeforge_vision_extracts_total counter\n")

	var visionKeys []string
	for k := range visionExtracts {
		visionKeys = append(visionKeys, k)
	}
	sort.Strings(visionKeys)
	for _, k := range visionKeys {
		fmt.Fprintf(&b, "scrapeforge_vision_extracts_total{success=\"%s\"} %d\n", k, visionExtracts[k])
	}

	b.WriteString("# HELP scrapeforge_urls_processed_total Total URLs processed by terminal status\n")
	b.WriteString("# TYPE scrapeforge_urls_processed_total counter\n")

	var urlStatuses []string
	for k := range urlsProcessed {
		urlStatuses = append(urlStatuses, k)
	}
	sort.Strings(urlStatuses)
	for _, k := range urlStatuses {
		fmt.Fprintf(&b, "scrapeforge_urls_processed_total{status=\"%s\"} %d\n", k, urlsProcessed[k])
	}

	b.WriteString("# HELP scrapeforge_jobs_finished_total Total jobs reaching a terminal status\n")
	b.WriteString("# TYPE scrapeforge_jobs_finished_total counter\n")

	var jobStatuses []string
	for k := range jobsFinished {
		jobStatuses = append(jobStatuses, k)
	}
	sort.Strings(jobStatuses)
	for _, k := range jobStatuses {
		fmt.Fprintf(&b, "scrapeforge_jobs_finished_total{status=\"%s\"} %d\n", k, jobsFinished[k])
	}

	b.WriteString("# HELP scrapeforge_retention_jobs_deleted_total Total jobs deleted by TTL\n")
	b.WriteString("# TYPE scrapeforge_retention_jobs_deleted_total counter\n")
	fmt.Fprintf(&b, "scrapeforge_retention_jobs_deleted_total %d\n", retentionJobsDeleted)

	return b.String()
}
