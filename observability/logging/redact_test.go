package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRedactMasksSensitiveKeys(t *testing.T) {
	if got := Redact(slog.String("btc_address", "bcrt1qexample")).Value.String(); got != RedactedValue {
		t.Fatalf("expected address to be redacted, got %q", got)
	}
	if got := Redact(slog.String("vault", "vb1vault")).Value.String(); got != "vb1vault" {
		t.Fatalf("expected vault to stay visible, got %q", got)
	}
	if got := Redact(slog.String("public_key", "")).Value.String(); got != "" {
		t.Fatalf("expected empty value to pass through, got %q", got)
	}
	if !IsSensitive("Webhook_Secret") {
		t.Fatalf("expected *_secret keys to be sensitive")
	}
}

func TestSetupRedactsLogLines(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions(Options{Service: "vaultd", Env: "test", Output: &buf, Level: slog.LevelInfo})
	logger.Info("redeem requested", "vault", "vb1vault", slog.Group("request", slog.String("btc_address", "bcrt1qexample")))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["service"] != "vaultd" || line["severity"] != "INFO" || line["message"] != "redeem requested" {
		t.Fatalf("unexpected envelope %v", line)
	}
	if line["vault"] != "vb1vault" {
		t.Fatalf("vault must stay visible: %v", line)
	}
	request, ok := line["request"].(map[string]any)
	if !ok || request["btc_address"] != RedactedValue {
		t.Fatalf("expected nested address to be redacted: %v", line)
	}
}
