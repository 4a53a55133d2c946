package notifier

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := n.Notify(sampleAnnouncement()); err != nil {
		t.Errorf("Notify() = %v, want nil", err)
	}

	out := buf.String()
	for _, want := range []string{"announcement ready", "request_id=req-1", "user=42", "source_url=https://hh.ru/vacancy/1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Acme ищут") {
		t.Error("announcement text should only be logged at debug level")
	}
}

func TestNopNotifier(t *testing.T) {
	if err := (NopNotifier{}).Notify(sampleAnnouncement()); err != nil {
		t.Errorf("Notify() = %v, want nil", err)
	}
}
