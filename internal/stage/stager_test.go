package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// fakeTransport records calls and lets tests fail individual steps.
type fakeTransport struct {
	ensureDirErr error
	copyErr      error
	existsErr    error
	existsResult bool

	calls []string
}

func (f *fakeTransport) RemotePath(winPath string) string { return winPath }

func (f *fakeTransport) EnsureDir(path string) error {
	f.calls = append(f.calls, "ensuredir")
	return f.ensureDirErr
}

func (f *fakeTransport) Exists(path string) (bool, error) {
	f.calls = append(f.calls, "exists")
	return f.existsResult, f.existsErr
}

func (f *fakeTransport) Copy(localPath, remotePath string) error {
	f.calls = append(f.calls, "copy")
	return f.copyErr
}

func (f *fakeTransport) Remove(path string) error {
	f.calls = append(f.calls, "remove")
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func writeFakeInstaller(t *testing.T) (dir, filename string) {
	t.Helper()
	dir = t.TempDir()
	filename = "installer.exe"
	if err := os.WriteFile(filepath.Join(dir, filename), []byte("MZ fake"), 0o644); err != nil {
		t.Fatalf("write installer: %v", err)
	}
	return dir, filename
}

func TestStageHappyPath(t *testing.T) {
	dir, filename := writeFakeInstaller(t)
	ft := &fakeTransport{existsResult: true}

	result, err := New(ft).Stage(context.Background(), dir, filename, `C:\Staging`)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if !result.DestinationDirectoryReady || !result.SourceExists || !result.CopySucceeded || !result.DestinationVerified {
		t.Fatalf("all steps should be marked good: %+v", result)
	}
}

func TestStageDirectoryFailure(t *testing.T) {
	dir, filename := writeFakeInstaller(t)
	ft := &fakeTransport{ensureDirErr: fmt.Errorf("access denied")}

	_, err := New(ft).Stage(context.Background(), dir, filename, `C:\Staging`)

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepDirectory {
		t.Fatalf("expected StepDirectory failure, got %v", err)
	}
	for _, c := range ft.calls {
		if c == "copy" {
			t.Fatal("copy must not run after directory failure")
		}
	}
}

func TestStageMissingSourceNeverCopies(t *testing.T) {
	ft := &fakeTransport{}

	result, err := New(ft).Stage(context.Background(), t.TempDir(), "missing.exe", `C:\Staging`)

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepSource {
		t.Fatalf("expected StepSource failure, got %v", err)
	}
	if result.SourceExists {
		t.Fatal("SourceExists should be false")
	}
	for _, c := range ft.calls {
		if c == "copy" {
			t.Fatal("copy must never be invoked when the source is absent")
		}
	}
}

func TestStageCopyFailure(t *testing.T) {
	dir, filename := writeFakeInstaller(t)
	ft := &fakeTransport{copyErr: fmt.Errorf("network path not found")}

	result, err := New(ft).Stage(context.Background(), dir, filename, `C:\Staging`)

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepCopy {
		t.Fatalf("expected StepCopy failure, got %v", err)
	}
	if result.CopySucceeded {
		t.Fatal("CopySucceeded should be false")
	}
}

func TestStageVerifyIsAuthoritative(t *testing.T) {
	// The copy reports success but the destination check finds nothing.
	dir, filename := writeFakeInstaller(t)
	ft := &fakeTransport{existsResult: false}

	result, err := New(ft).Stage(context.Background(), dir, filename, `C:\Staging`)

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepVerify {
		t.Fatalf("expected StepVerify failure, got %v", err)
	}
	if !result.CopySucceeded {
		t.Fatal("CopySucceeded should remain true; verification failed separately")
	}
	if result.DestinationVerified {
		t.Fatal("DestinationVerified should be false")
	}
}

func TestStageIdempotentWithShareTransport(t *testing.T) {
	dir, filename := writeFakeInstaller(t)
	mount := t.TempDir()

	transport := NewShareTransport("ws01", mount)
	stager := New(transport)

	// First pass creates the directory, second pass finds it existing.
	for i := 0; i < 2; i++ {
		result, err := stager.Stage(context.Background(), dir, filename, `C:\Staging`)
		if err != nil {
			t.Fatalf("pass %d: %v", i+1, err)
		}
		if !result.DestinationVerified {
			t.Fatalf("pass %d: destination not verified", i+1)
		}
	}

	if _, err := os.Stat(filepath.Join(mount, "Staging", filename)); err != nil {
		t.Fatalf("staged file not on mount: %v", err)
	}
}

func TestShareTransportRemotePath(t *testing.T) {
	tests := []struct {
		host    string
		mount   string
		winPath string
		want    string
	}{
		{"ws01", "", `C:\Staging\inst.exe`, `\\ws01\C$\Staging\inst.exe`},
		{"ws01", "", `D:\Apps`, `\\ws01\D$\Apps`},
		{"ws01", "/mnt/ws01", `C:\Staging\inst.exe`, filepath.Join("/mnt/ws01", "Staging", "inst.exe")},
	}

	for _, tt := range tests {
		transport := NewShareTransport(tt.host, tt.mount)
		if got := transport.RemotePath(tt.winPath); got != tt.want {
			t.Errorf("RemotePath(%q) = %q, want %q", tt.winPath, got, tt.want)
		}
	}
}

func TestWinJoin(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{`C:\Staging`, "inst.exe"}, `C:\Staging\inst.exe`},
		{[]string{`C:\Staging\`, `inst.exe`}, `C:\Staging\inst.exe`},
		{[]string{`C:\A`, `B`, `c.txt`}, `C:\A\B\c.txt`},
	}

	for _, tt := range tests {
		if got := WinJoin(tt.parts...); got != tt.want {
			t.Errorf("WinJoin(%v) = %q, want %q", tt.parts, got, tt.want)
		}
	}
}
