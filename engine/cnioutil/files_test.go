package cnioutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, path string, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, filepath.Join(src, "server.properties"), "port=25565")
	writeTestFile(t, filepath.Join(src, "plugins", "a.jar"), "jar")
	writeTestFile(t, filepath.Join(src, "logs", "latest.log"), "log")
	writeTestFile(t, filepath.Join(src, "cache.tmp"), "tmp")

	if err := CopyDir(src, dst, ExcludeMatcher([]string{"logs/", "*.tmp"})); err != nil {
		t.Fatal(err)
	}

	if !IsExists(filepath.Join(dst, "server.properties")) || !IsExists(filepath.Join(dst, "plugins", "a.jar")) {
		t.Errorf("expected files to be copied")
	}
	if IsExists(filepath.Join(dst, "logs")) {
		t.Errorf("expected logs to be excluded")
	}
	if IsExists(filepath.Join(dst, "cache.tmp")) {
		t.Errorf("expected cache.tmp to be excluded")
	}
}

func TestFileSHA256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	writeTestFile(t, path, "abc")
	sum, err := FileSHA256(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("wrong digest %s", sum)
	}
}

func TestReadWriteAll(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAll(&buf, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 5)
	if err := ReadAll(&buf, data); err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("expected hello, got %s", data)
	}
}
