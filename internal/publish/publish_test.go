package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"

	"github.com/me/cwl2nf/internal/convert"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	failKey string
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failKey {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+key] = string(data)
	f.types[key] = aws.ToString(in.ContentType)
	return &manager.UploadOutput{Key: in.Key}, nil
}

func newFake() *fakeUploader {
	return &fakeUploader{objects: map[string]string{}, types: map[string]string{}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

var arts = []convert.Artifact{
	{Name: "rna_seq.nf", Data: []byte("workflow {}\n")},
	{Name: "rna_seq_metadata.json", Data: []byte("{}\n")},
	{Name: "pull_containers.sh", Data: []byte("#!/bin/bash\n")},
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target     string
		bucket     string
		prefix     string
		wantErrors bool
	}{
		{"s3://omics-out", "omics-out", "", false},
		{"s3://omics-out/", "omics-out", "", false},
		{"s3://omics-out/pipelines/v1/", "omics-out", "pipelines/v1", false},
		{"omics-out/pipelines", "", "", true},
		{"https://omics-out/pipelines", "", "", true},
		{"s3:///pipelines", "", "", true},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseTarget(tt.target)
		if (err != nil) != tt.wantErrors {
			t.Errorf("ParseTarget(%q) err = %v, want error %v", tt.target, err, tt.wantErrors)
			continue
		}
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseTarget(%q) = %q, %q, want %q, %q", tt.target, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}

func TestPublish(t *testing.T) {
	fake := newFake()
	p, err := NewS3Publisher(context.Background(), "s3://omics-out/pipelines", testLogger(), WithUploader(fake), WithConcurrency(2))
	if err != nil {
		t.Fatalf("NewS3Publisher: %v", err)
	}

	loc, err := p.Publish(context.Background(), "rna_seq", arts)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if want := "s3://omics-out/pipelines/rna_seq/"; loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}

	var keys []string
	for k := range fake.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{
		"omics-out/pipelines/rna_seq/pull_containers.sh",
		"omics-out/pipelines/rna_seq/rna_seq.nf",
		"omics-out/pipelines/rna_seq/rna_seq_metadata.json",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if got := fake.objects["omics-out/pipelines/rna_seq/rna_seq.nf"]; got != "workflow {}\n" {
		t.Errorf("body = %q", got)
	}
	if got := fake.types["pipelines/rna_seq/rna_seq_metadata.json"]; got != "application/json" {
		t.Errorf("content type = %q, want application/json", got)
	}
}

func TestPublishNoPrefix(t *testing.T) {
	fake := newFake()
	p, err := NewS3Publisher(context.Background(), "s3://omics-out", testLogger(), WithUploader(fake))
	if err != nil {
		t.Fatal(err)
	}
	loc, err := p.Publish(context.Background(), "wf", arts[:1])
	if err != nil {
		t.Fatal(err)
	}
	if loc != "s3://omics-out/wf/" {
		t.Errorf("location = %q", loc)
	}
	if _, ok := fake.objects["omics-out/wf/rna_seq.nf"]; !ok {
		t.Errorf("objects = %v", fake.objects)
	}
}

func TestPublishFailure(t *testing.T) {
	fake := newFake()
	fake.failKey = "pipelines/rna_seq/rna_seq.nf"
	p, err := NewS3Publisher(context.Background(), "s3://omics-out/pipelines", testLogger(), WithUploader(fake))
	if err != nil {
		t.Fatal(err)
	}
	loc, err := p.Publish(context.Background(), "rna_seq", arts)
	if err == nil {
		t.Fatal("Publish succeeded, want error")
	}
	if loc != "" {
		t.Errorf("location = %q, want empty", loc)
	}
}

func TestNewS3PublisherBadTarget(t *testing.T) {
	if _, err := NewS3Publisher(context.Background(), "bucket-only", testLogger(), WithUploader(newFake())); err == nil {
		t.Error("NewS3Publisher(bucket-only) succeeded, want error")
	}
}
