package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/karmakaze/quicklog/internal/history"
)

func TestParsePort(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantOK  bool
		wantErr bool
	}{
		{"no argument", nil, 0, false, false},
		{"valid port", []string{"9000"}, 9000, true, false},
		{"lowest port", []string{"1"}, 1, true, false},
		{"highest port", []string{"65535"}, 65535, true, false},
		{"zero", []string{"0"}, 0, false, true},
		{"too large", []string{"65536"}, 0, false, true},
		{"not a number", []string{"http"}, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := parsePort(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePort() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parsePort() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://deploy.example.com/", false},
		{"http://203.0.113.7:8954/", false},
		{"", true},
		{"ftp://example.com/", true},
		{"https://", true},
		{"not a url", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if err := validateWebhookURL(tt.url); (err != nil) != tt.wantErr {
				t.Errorf("validateWebhookURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty() = %q, want b", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}

func TestSetupLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "quickhook.log")
	var console bytes.Buffer

	logger, closeLog, err := setupLogging(&console, logPath)
	if err != nil {
		t.Fatalf("setupLogging() error = %v", err)
	}
	logger.Info("running deploy command", "command", "git pull -r")
	closeLog()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"command":"git pull -r"`) {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(console.String(), `"msg":"running deploy command"`) {
		t.Errorf("console missing entry: %s", console.String())
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("log file permissions = %04o, want 0640", info.Mode().Perm())
	}
}

func TestSetupLogging_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, closeLog, err := setupLogging(&console, "")
	if err != nil {
		t.Fatalf("setupLogging() error = %v", err)
	}
	defer closeLog()

	logger.Info("hello")
	if !strings.Contains(console.String(), `"msg":"hello"`) {
		t.Errorf("console missing entry: %s", console.String())
	}
}

func TestPrintDeliveries(t *testing.T) {
	commit := "0123456789abcdef"
	errMsg := "make rebuild: exit code 2"
	duration := 1.5

	var out bytes.Buffer
	err := printDeliveries(&out, []history.Delivery{
		{
			ID:              2,
			FullName:        "karmakaze/quicklog",
			Ref:             "refs/heads/master",
			Outcome:         history.OutcomeFailed,
			ReceivedAt:      time.Now(),
			CommitHash:      &commit,
			DurationSeconds: &duration,
			ErrorMessage:    &errMsg,
		},
		{
			ID:         1,
			Outcome:    history.OutcomeIgnored,
			ReceivedAt: time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("printDeliveries() error = %v", err)
	}

	text := out.String()
	for _, want := range []string{"OUTCOME", "0123456", "1.5s", errMsg, history.OutcomeIgnored} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, commit) {
		t.Error("commit hash should be shortened")
	}
}

func TestPrintDeliveries_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := printDeliveries(&out, nil); err != nil {
		t.Fatalf("printDeliveries() error = %v", err)
	}
	if !strings.Contains(out.String(), "No deliveries") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)

	runVersion(versionCmd, nil)

	if !strings.Contains(out.String(), "quickhook version") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestLogLastDelivery(t *testing.T) {
	hist, err := history.NewHistory(filepath.Join(t.TempDir(), "deliveries.db"))
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	defer hist.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := context.Background()

	logLastDelivery(ctx, logger, hist)
	if !strings.Contains(buf.String(), "Delivery journal is empty") {
		t.Errorf("expected empty journal message, got %s", buf.String())
	}

	if _, err := hist.Record(ctx, &history.Delivery{
		FullName: "karmakaze/quicklog",
		Ref:      "refs/heads/master",
		Outcome:  history.OutcomeDeployed,
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	buf.Reset()
	logLastDelivery(ctx, logger, hist)
	out := buf.String()
	if !strings.Contains(out, "Last recorded delivery") || !strings.Contains(out, "outcome=deployed") {
		t.Errorf("expected last delivery to be logged, got %s", out)
	}
}
