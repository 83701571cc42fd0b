package e2e

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func generateBody(selection string) string {
	return fmt.Sprintf(`{
		"narrative": {
			"text": "Today I found out my cat has been sneaking into the neighbour's house for free dinners.",
			"title": "TIFU by trusting my cat",
			"source": "reddit"
		},
		"videoSelection": %s
	}`, selection)
}

// submitJob posts a generate request and returns the job ID.
func submitJob(t *testing.T, ta *testApp, body string) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generate", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	result := parseJSON(t, resp)
	jobID, _ := result["jobId"].(string)
	if jobID == "" {
		t.Fatal("expected 'jobId' in response")
	}
	return jobID
}

// pollStatus polls the status endpoint until cond holds or the deadline
// passes. It returns every record seen.
func pollStatus(t *testing.T, ta *testApp, jobID string, cond func(map[string]interface{}) bool) []map[string]interface{} {
	t.Helper()
	var seen []map[string]interface{}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/generate/"+jobID+"/status", "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status 200 while polling, got %d", resp.StatusCode)
		}
		record := parseJSON(t, resp)
		seen = append(seen, record)
		if cond(record) {
			return seen
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach the expected state, last record: %v", jobID, seen[len(seen)-1])
	return nil
}

func terminal(record map[string]interface{}) bool {
	return record["status"] == "done" || record["status"] == "error"
}

func TestGenerate_Success(t *testing.T) {
	ta := setupApp(t)
	ta.writeVideo(t, "bg.mp4")

	jobID := submitJob(t, ta, generateBody(`{"filePath": "bg.mp4"}`))
	records := pollStatus(t, ta, jobID, terminal)

	last := -1.0
	for _, r := range records {
		progress, _ := r["progress"].(float64)
		if progress < last {
			t.Errorf("progress went backwards: %v after %v", progress, last)
		}
		last = progress
		if progress == 100 && r["status"] != "done" {
			t.Errorf("progress 100 with status %v", r["status"])
		}
	}

	final := records[len(records)-1]
	if final["status"] != "done" {
		t.Fatalf("expected status 'done', got %v (error %v)", final["status"], final["error"])
	}
	if final["progress"] != float64(100) {
		t.Errorf("expected progress 100, got %v", final["progress"])
	}
	if final["step"] != "Complete" {
		t.Errorf("expected step 'Complete', got %v", final["step"])
	}
	if _, ok := final["error"]; ok {
		t.Errorf("expected no error on a done job, got %v", final["error"])
	}
	output, _ := final["output"].(string)
	if output != "/api/video/"+jobID+".mp4" {
		t.Errorf("unexpected output %q", output)
	}

	resp, err := doRequest(ta.app, http.MethodGet, output, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if body := readBody(t, resp); body != "composited" {
		t.Errorf("unexpected artifact body %q", body)
	}

	if _, err := os.Stat(filepath.Join(ta.cfg.Storage.WorkDir, jobID)); !os.IsNotExist(err) {
		t.Errorf("expected work dir removed, stat err = %v", err)
	}
}

func TestGenerate_LibraryVideo(t *testing.T) {
	ta := setupApp(t)
	ta.writeVideo(t, "subway_1.mp4")

	jobID := submitJob(t, ta, generateBody(`{"id": "ss-1", "name": "Subway Surfers Clip 1"}`))
	records := pollStatus(t, ta, jobID, terminal)

	if final := records[len(records)-1]; final["status"] != "done" {
		t.Errorf("expected status 'done', got %v (error %v)", final["status"], final["error"])
	}
}

func TestGenerate_MissingSourceFails(t *testing.T) {
	ta := setupApp(t)

	// The library entry exists but its file was never placed on disk
	jobID := submitJob(t, ta, generateBody(`{"id": "mc-1"}`))
	records := pollStatus(t, ta, jobID, terminal)

	final := records[len(records)-1]
	if final["status"] != "error" {
		t.Fatalf("expected status 'error', got %v", final["status"])
	}
	if final["errorCode"] != "SOURCE_UNAVAILABLE" {
		t.Errorf("expected errorCode SOURCE_UNAVAILABLE, got %v", final["errorCode"])
	}
	if _, ok := final["output"]; ok {
		t.Errorf("expected no output on a failed job, got %v", final["output"])
	}
	if final["progress"] == float64(100) {
		t.Error("failed job must not report progress 100")
	}
}

func TestGenerate_UnreachableURLFails(t *testing.T) {
	ta := setupApp(t)

	jobID := submitJob(t, ta, generateBody(`{"url": "http://127.0.0.1:1/clip.mp4"}`))
	records := pollStatus(t, ta, jobID, terminal)

	final := records[len(records)-1]
	if final["errorCode"] != "SOURCE_UNAVAILABLE" {
		t.Errorf("expected errorCode SOURCE_UNAVAILABLE, got %v", final["errorCode"])
	}
	entries, _ := os.ReadDir(ta.cfg.Storage.WorkDir)
	if len(entries) != 0 {
		t.Errorf("expected no temporaries left, found %d entries", len(entries))
	}
}

func TestGenerate_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/generate", generateBody(`{"id": "mc-1"}`), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestGenerate_InvalidRequests(t *testing.T) {
	ta := setupApp(t)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"blank text", `{"narrative": {"text": "   "}, "videoSelection": {"id": "mc-1"}}`, http.StatusUnprocessableEntity},
		{"missing narrative", `{"videoSelection": {"id": "mc-1"}}`, http.StatusUnprocessableEntity},
		{"missing selection", `{"narrative": {"text": "A story worth telling."}}`, http.StatusUnprocessableEntity},
		{"empty selection", generateBody(`{}`), http.StatusUnprocessableEntity},
		{"unknown library id", generateBody(`{"id": "does-not-exist"}`), http.StatusUnprocessableEntity},
		{"path escape", generateBody(`{"filePath": "../secrets.mp4"}`), http.StatusUnprocessableEntity},
		{"malformed json", `{"narrative": `, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generate", tc.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, tc.status)
			body := parseJSON(t, resp)
			if errorCode(body) == "" {
				t.Errorf("expected error envelope, got %v", body)
			}
		})
	}

	if ta.registry.Len() != 0 {
		t.Errorf("expected no jobs created, got %d", ta.registry.Len())
	}
}

func TestGenerateStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/generate/no-such-job/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
	if code := errorCode(parseJSON(t, resp)); code != "NOT_FOUND" {
		t.Errorf("expected code NOT_FOUND, got %q", code)
	}
}

func TestGenerateCancel_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodDelete, "/api/generate/no-such-job", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestGenerateCancel_Running(t *testing.T) {
	ta := setupApp(t)
	ta.writeVideo(t, "bg.mp4")
	ta.compositor.holdAll()

	jobID := submitJob(t, ta, generateBody(`{"filePath": "bg.mp4"}`))

	select {
	case <-ta.compositor.started:
	case <-time.After(5 * time.Second):
		t.Fatal("composite never started")
	}

	resp, err := doAuthRequest(t, ta.app, http.MethodDelete, "/api/generate/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["jobId"] != jobID {
		t.Errorf("expected jobId %s, got %v", jobID, result["jobId"])
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/generate/"+jobID+"/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)

	select {
	case <-ta.compositor.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("composite was not cancelled")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := os.Stat(filepath.Join(ta.cfg.Storage.WorkDir, jobID))
		if os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected work dir removed after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(filepath.Join(ta.cfg.Storage.OutputDir, jobID+".mp4")); !os.IsNotExist(err) {
		t.Error("expected no output artifact for a cancelled job")
	}
}

func TestGenerateCancel_Finished(t *testing.T) {
	ta := setupApp(t)
	ta.writeVideo(t, "bg.mp4")

	jobID := submitJob(t, ta, generateBody(`{"filePath": "bg.mp4"}`))
	pollStatus(t, ta, jobID, terminal)

	resp, err := doAuthRequest(t, ta.app, http.MethodDelete, "/api/generate/"+jobID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	if _, err := os.Stat(filepath.Join(ta.cfg.Storage.OutputDir, jobID+".mp4")); !os.IsNotExist(err) {
		t.Error("expected output artifact removed on cancel")
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/generate/"+jobID+"/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestGenerate_ConcurrentJobsIndependent(t *testing.T) {
	ta := setupApp(t)
	ta.writeVideo(t, "bg.mp4")

	first := submitJob(t, ta, generateBody(`{"filePath": "bg.mp4"}`))
	second := submitJob(t, ta, generateBody(`{"filePath": "bg.mp4"}`))
	if first == second {
		t.Fatal("expected distinct job IDs")
	}

	for _, id := range []string{first, second} {
		records := pollStatus(t, ta, id, terminal)
		final := records[len(records)-1]
		if final["status"] != "done" {
			t.Errorf("job %s: expected done, got %v", id, final["status"])
		}
		if final["output"] != "/api/video/"+id+".mp4" {
			t.Errorf("job %s: unexpected output %v", id, final["output"])
		}
	}
}
