package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vstream/video-platform-back/internal/domain"
	"github.com/vstream/video-platform-back/internal/gateway"
	httpserver "github.com/vstream/video-platform-back/internal/http"
	"github.com/vstream/video-platform-back/internal/http/handlers"
	"github.com/vstream/video-platform-back/internal/http/middleware"
	"github.com/vstream/video-platform-back/internal/queue"
	"github.com/vstream/video-platform-back/internal/repository"
	"github.com/vstream/video-platform-back/internal/search"
	"github.com/vstream/video-platform-back/internal/service"
	"github.com/vstream/video-platform-back/internal/worker"
)

type integrationRuntime struct {
	server *httptest.Server
	cancel context.CancelFunc
}

func startSearchRuntime(t *testing.T, corpus []*domain.Video) integrationRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	jobsRepo := repository.NewMemoryJobsRepository()
	videosRepo := repository.NewMemoryVideosRepository()
	for _, video := range corpus {
		if err := videosRepo.CreateVideo(ctx, video); err != nil {
			t.Fatalf("seed video: %v", err)
		}
	}

	notifier := queue.NewLocalNotifier(256, 50*time.Millisecond)
	jobsService := service.NewJobsService(jobsRepo, notifier, logger)
	cache := search.NewResultsCache(search.CacheConfig{TTL: time.Minute, MaxEntries: 100})

	processor := worker.NewProcessor(jobsService, videosRepo, search.Score, cache, notifier, logger)
	go processor.Start(ctx)

	router := httpserver.NewSearchRouter(httpserver.SearchRouterDependencies{
		API:            handlers.NewSearchAPI(jobsService),
		Logger:         logger,
		Verifier:       middleware.StaticVerifier{"token-u1": "u1", "token-u2": "u2"},
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	server := httptest.NewServer(router)
	return integrationRuntime{
		server: server,
		cancel: func() {
			cancel()
			server.Close()
		},
	}
}

func postJSON(
	t *testing.T,
	client *http.Client,
	url string,
	payload any,
	token string,
) (int, map[string]any) {
	t.Helper()

	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	return response.StatusCode, decodeResponse(t, response)
}

func getJSON(t *testing.T, client *http.Client, url, token string) (int, map[string]any) {
	t.Helper()

	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build get request: %v", err)
	}
	request.Header.Set("Accept", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute get request: %v", err)
	}
	defer response.Body.Close()

	return response.StatusCode, decodeResponse(t, response)
}

func decodeResponse(t *testing.T, response *http.Response) map[string]any {
	t.Helper()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response body (%d): %s", response.StatusCode, string(raw))
	}
	return decoded
}

func waitForJobTerminal(
	t *testing.T,
	client *http.Client,
	baseURL string,
	jobID string,
	token string,
	timeout time.Duration,
) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, body := getJSON(t, client, fmt.Sprintf("%s/api/v1/search/%s", baseURL, jobID), token)
		if status != http.StatusOK {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		jobStatus, _ := body["status"].(string)
		if jobStatus == string(domain.JobStatusCompleted) || jobStatus == string(domain.JobStatusFailed) {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for job %s to reach a terminal state", jobID)
	return nil
}

func TestSearchSubmitPollCompleteFlow(t *testing.T) {
	runtime := startSearchRuntime(t, []*domain.Video{
		{ID: "v1", Title: "Machine Learning Basics", Description: "a machine learning primer"},
		{ID: "v2", Title: "Advanced Learning Paths", Description: "study tips"},
		{ID: "v3", Title: "Cooking With Gas", Description: "a kitchen show"},
	})
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	submitStatus, submitBody := postJSON(
		t,
		client,
		baseURL+"/api/v1/search",
		map[string]any{"query": "machine learning"},
		"token-u1",
	)
	if submitStatus != http.StatusAccepted {
		t.Fatalf("expected 202 from submit, got %d body=%+v", submitStatus, submitBody)
	}
	jobID, _ := submitBody["job_id"].(string)
	if strings.TrimSpace(jobID) == "" {
		t.Fatalf("expected job id in submit response, got %+v", submitBody)
	}
	if submitBody["status"] != string(domain.JobStatusQueued) {
		t.Fatalf("expected queued status in submit response, got %+v", submitBody["status"])
	}

	job := waitForJobTerminal(t, client, baseURL, jobID, "token-u1", 4*time.Second)
	if job["status"] != string(domain.JobStatusCompleted) {
		t.Fatalf("expected completed job, got %+v", job)
	}

	results, ok := job["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("expected 2 matching videos, got %+v", job["results"])
	}
	first, _ := results[0].(map[string]any)
	if first["video_id"] != "v1" {
		t.Fatalf("expected phrase match ranked first, got %+v", first)
	}
	previous := 1.1
	for _, raw := range results {
		result, _ := raw.(map[string]any)
		score, _ := result["relevance_score"].(float64)
		if score < 0 || score > 1 {
			t.Fatalf("score out of range: %+v", result)
		}
		if score > previous {
			t.Fatalf("results not sorted by descending relevance: %+v", results)
		}
		previous = score
	}

	// Terminal responses are stable: a second poll returns the same payload.
	again := waitForJobTerminal(t, client, baseURL, jobID, "token-u1", time.Second)
	if fmt.Sprintf("%v", again["results"]) != fmt.Sprintf("%v", job["results"]) {
		t.Fatalf("expected stable completed payload, got %+v then %+v", job, again)
	}
}

func TestSearchJobAccessControl(t *testing.T) {
	runtime := startSearchRuntime(t, nil)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	submitStatus, submitBody := postJSON(
		t,
		client,
		baseURL+"/api/v1/search",
		map[string]any{"query": "anything"},
		"token-u1",
	)
	if submitStatus != http.StatusAccepted {
		t.Fatalf("expected 202 from submit, got %d", submitStatus)
	}
	jobID, _ := submitBody["job_id"].(string)

	status, body := getJSON(t, client, baseURL+"/api/v1/search/"+jobID, "token-u2")
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d body=%+v", status, body)
	}
	envelope, ok := body["error"].(map[string]any)
	if !ok || envelope["code"] != "forbidden" {
		t.Fatalf("expected forbidden error envelope, got %+v", body)
	}

	status, _ = getJSON(t, client, baseURL+"/api/v1/search/no-such-job", "token-u1")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", status)
	}

	status, _ = getJSON(t, client, baseURL+"/api/v1/search/"+jobID, "")
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}

func TestGatewayRoutesSearchTraffic(t *testing.T) {
	runtime := startSearchRuntime(t, []*domain.Video{
		{ID: "v1", Title: "Machine Learning Basics", Description: ""},
	})
	defer runtime.cancel()

	logger := log.New(io.Discard, "", 0)
	proxy, err := gateway.NewProxy(gateway.Config{
		Routes: []gateway.Route{
			{Prefix: "/api/v1/search", Target: "search", URL: runtime.server.URL},
		},
		CallTimeout:      2 * time.Second,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}, logger)
	if err != nil {
		t.Fatalf("build proxy: %v", err)
	}

	gatewayServer := httptest.NewServer(httpserver.NewGatewayRouter(httpserver.GatewayRouterDependencies{
		Proxy:          proxy,
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	}))
	defer gatewayServer.Close()

	client := gatewayServer.Client()

	submitStatus, submitBody := postJSON(
		t,
		client,
		gatewayServer.URL+"/api/v1/search",
		map[string]any{"query": "machine learning"},
		"token-u1",
	)
	if submitStatus != http.StatusAccepted {
		t.Fatalf("expected 202 through gateway, got %d body=%+v", submitStatus, submitBody)
	}
	jobID, _ := submitBody["job_id"].(string)

	job := waitForJobTerminal(t, client, gatewayServer.URL, jobID, "token-u1", 4*time.Second)
	if job["status"] != string(domain.JobStatusCompleted) {
		t.Fatalf("expected completed job through gateway, got %+v", job)
	}

	status, _ := getJSON(t, client, gatewayServer.URL+"/api/v1/analytics/summary", "token-u1")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unrouted prefix, got %d", status)
	}
}
