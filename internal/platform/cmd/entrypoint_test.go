package cmd

import (
	"context"
	"flag"
	"fmt"
	"testing"
)

func TestParseConfigNil(t *testing.T) {
	if err := ParseConfig[struct{}](nil); err == nil {
		t.Fatal("expected error for nil config target")
	}
}

func TestParseArgs(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var path string
	fs.StringVar(&path, "db", "", "db path")

	if err := ParseArgs(fs, []string{"-db", "/tmp/exam.db"}); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if path != "/tmp/exam.db" {
		t.Fatalf("expected flag value, got %q", path)
	}

	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected error for nil flag set")
	}
}

func TestRunWithTelemetryValidation(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for empty service name")
	}
	if err := RunWithTelemetry(context.Background(), ServiceExamd, nil); err == nil {
		t.Fatal("expected error for nil run function")
	}
}

func TestRunWithTelemetryRuns(t *testing.T) {
	ran := false
	err := RunWithTelemetry(context.Background(), ServiceExamd, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !ran {
		t.Fatal("expected run function to execute")
	}
}

func TestRunWithTelemetryPropagatesError(t *testing.T) {
	wantErr := fmt.Errorf("boom")
	err := RunWithTelemetry(context.Background(), ServiceExamd, func(context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected run error, got %v", err)
	}
}
