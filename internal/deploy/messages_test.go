package deploy

import (
	"strings"
	"testing"
)

func TestMessageLogPreservesOrder(t *testing.T) {
	l := &MessageLog{}
	l.Infof("first")
	l.Warnf("second")
	l.Errorf("third")
	l.Infof("fourth")

	msgs := l.Messages()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	want := []struct {
		sev  Severity
		text string
	}{
		{Info, "first"},
		{Warning, "second"},
		{Error, "third"},
		{Info, "fourth"},
	}
	for i, w := range want {
		if msgs[i].Severity != w.sev || msgs[i].Text != w.text {
			t.Fatalf("message %d = %+v, want {%v %q}", i, msgs[i], w.sev, w.text)
		}
	}
}

func TestSeverityIsCarriedNotParsed(t *testing.T) {
	// The text may contain a misleading prefix; the carried severity wins.
	l := &MessageLog{}
	l.Infof("ERROR: this is informational despite the wording")

	msgs := l.Messages()
	if msgs[0].Severity != Info {
		t.Fatalf("Severity = %v, want Info", msgs[0].Severity)
	}
	if l.HasSeverity(Error) {
		t.Fatal("HasSeverity must consult the field, not the text")
	}
}

func TestRender(t *testing.T) {
	l := &MessageLog{}
	l.Infof("copying")
	l.Warnf("slow link")
	l.Errorf("gave up")

	var sb strings.Builder
	l.Render(&sb)

	out := sb.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "[INFO]") ||
		!strings.HasPrefix(lines[1], "[WARNING]") ||
		!strings.HasPrefix(lines[2], "[ERROR]") {
		t.Fatalf("unexpected prefixes:\n%s", out)
	}
}

func TestInstallerCode(t *testing.T) {
	if InstallerCode(1) != 101 || InstallerCode(2) != 102 || InstallerCode(57) != 157 {
		t.Fatal("installer codes must be 100 plus the raw exit status")
	}
}
