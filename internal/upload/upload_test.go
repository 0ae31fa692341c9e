package upload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirUploaderWritesFileAndReturnsURL(t *testing.T) {
	u := &DirUploader{BaseDir: t.TempDir(), BaseURL: "http://files.local"}

	url, err := u.Upload(context.Background(), []byte("jpeg bytes"), "cars")
	if err != nil {
		t.Fatalf("upload error: %v", err)
	}
	if !strings.HasPrefix(url, "http://files.local/cars/") {
		t.Fatalf("unexpected url %s", url)
	}

	name := url[strings.LastIndex(url, "/")+1:]
	data, err := os.ReadFile(filepath.Join(u.BaseDir, "cars", name))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestDirUploaderHonorsCancelledContext(t *testing.T) {
	u := &DirUploader{BaseDir: t.TempDir(), BaseURL: "http://files.local"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := u.Upload(ctx, []byte("x"), "cars"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
