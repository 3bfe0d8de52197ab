package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCollectors(t *testing.T) {
	RecordIngestion("COMPLETED", 3*time.Second)
	RecordSummary("file", "ai")
	AddCommitsStored(2)
	RecordQuestion()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}

	for _, want := range []string{
		`dionysus_ingestion_runs_total{status="COMPLETED"}`,
		`dionysus_summaries_total{kind="file",source="ai"}`,
		"dionysus_commits_stored_total",
		"dionysus_questions_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
