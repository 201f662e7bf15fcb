package store

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arvelex/veriplan/pkg/model"
)

func sampleReport() *model.RunReport {
	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return &model.RunReport{
		RunID:      "20260314T100000-deadbeef",
		TestCaseID: "VPL-42",
		Overall:    model.RunFailed,
		StartedAt:  started,
		EndedAt:    started.Add(42 * time.Second),
		Results: []model.StepResult{
			{StepIndex: 1, Status: model.StatusPassed, Attempts: 1},
			{StepIndex: 2, Status: model.StatusFailed, Attempts: 1, ErrorDetail: "mismatch"},
		},
	}
}

func TestLocalStorePublish(t *testing.T) {
	dir := t.TempDir()
	s := &LocalStore{Dir: dir}
	rep := sampleReport()

	if err := s.Publish(context.Background(), rep); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, rep.RunID, "report.json"))
	if err != nil {
		t.Fatalf("report.json missing: %v", err)
	}
	var back model.RunReport
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("report.json is not valid JSON: %v", err)
	}
	if back.TestCaseID != "VPL-42" || len(back.Results) != 2 {
		t.Errorf("round-tripped report = %+v", back)
	}
	if _, err := os.Stat(filepath.Join(dir, rep.RunID, "report.md")); err != nil {
		t.Errorf("report.md missing: %v", err)
	}
}

// fakeS3 records uploaded keys.
type fakeS3 struct {
	keys []string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if _, err := io.ReadAll(in.Body); err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePublishUploadsRunDir(t *testing.T) {
	runDir := t.TempDir()
	os.WriteFile(filepath.Join(runDir, "run.yaml"), []byte("run_id: x\n"), 0644)
	os.MkdirAll(filepath.Join(runDir, "artifacts"), 0755)
	os.WriteFile(filepath.Join(runDir, "artifacts", "screenshot-001.png"), []byte{0x89}, 0644)

	fake := &fakeS3{}
	s := NewS3StoreWithClient(fake, "qa-runs", "veriplan")
	s.RunDir = runDir
	rep := sampleReport()

	if err := s.Publish(context.Background(), rep); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	sort.Strings(fake.keys)
	want := []string{
		"veriplan/" + rep.RunID + "/artifacts/screenshot-001.png",
		"veriplan/" + rep.RunID + "/report.json",
		"veriplan/" + rep.RunID + "/run.yaml",
	}
	if len(fake.keys) != len(want) {
		t.Fatalf("uploaded keys = %v, want %v", fake.keys, want)
	}
	for i := range want {
		if fake.keys[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, fake.keys[i], want[i])
		}
	}
}

func TestS3StoreReportOnly(t *testing.T) {
	fake := &fakeS3{}
	s := NewS3StoreWithClient(fake, "qa-runs", "")
	if err := s.Publish(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(fake.keys) != 1 {
		t.Fatalf("keys = %v, want the report only", fake.keys)
	}
}
