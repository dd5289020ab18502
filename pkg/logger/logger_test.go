package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfoCFIncludesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	InfoCF("onebot", "Upstream connected", map[string]any{"upstream_id": "abc"})

	out := buf.String()
	for _, want := range []string{"Upstream connected", "component=onebot", "upstream_id=abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetLevel(INFO)
	DebugC("gateway", "hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line emitted at info level")
	}

	SetLevel(DEBUG)
	defer SetLevel(INFO)
	DebugC("gateway", "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug line missing at debug level")
	}
}
