package winrm

import (
	"context"
	"strings"
	"testing"
)

func TestEncodePowerShell(t *testing.T) {
	// PowerShell -EncodedCommand expects UTF-16LE base64.
	// "Get-Date" in UTF-16LE: 47 00 65 00 74 00 2D 00 44 00 61 00 74 00 65 00
	encoded := encodePowerShell("Get-Date")

	expected := "RwBlAHQALQBEAGEAdABlAA=="
	if encoded != expected {
		t.Fatalf("expected %s, got %s", expected, encoded)
	}
}

func TestSplitString(t *testing.T) {
	tests := []struct {
		input    string
		size     int
		expected int
	}{
		{"hello", 3, 2},
		{"hello", 10, 1},
		{"", 5, 0},
		{"abcdef", 2, 3},
		{"abcdefg", 3, 3},
	}

	for _, tt := range tests {
		chunks := splitString(tt.input, tt.size)
		if len(chunks) != tt.expected {
			t.Fatalf("splitString(%q, %d) = %d chunks, want %d", tt.input, tt.size, len(chunks), tt.expected)
		}
		if joined := strings.Join(chunks, ""); joined != tt.input {
			t.Fatalf("reassembled %q, want %q", joined, tt.input)
		}
	}
}

func TestTargetAddrDefaults(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"explicit port", Target{Hostname: "ws01", Port: 5999}, "ws01:5999"},
		{"http default", Target{Hostname: "ws01"}, "ws01:5985"},
		{"https default", Target{Hostname: "ws01", UseSSL: true}, "ws01:5986"},
	}

	for _, tt := range tests {
		if got := tt.target.Addr(); got != tt.want {
			t.Errorf("%s: Addr() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestConnectFailsForInvalidTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("network test")
	}

	target := &Target{
		Hostname: "127.0.0.1",
		Port:     1, // nothing listens here
		Username: "admin",
		Password: "pass",
	}

	sess, err := Connect(target)
	if err == nil {
		sess.Close()
		t.Fatal("expected connect failure for closed port")
	}
}

func TestSessionRunAfterClose(t *testing.T) {
	s := &Session{target: &Target{Hostname: "ws01"}}
	if _, err := s.Run(context.Background(), "Get-Date"); err == nil {
		t.Fatal("expected error running on a closed session")
	}
}
