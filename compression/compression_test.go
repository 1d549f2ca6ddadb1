package compression

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/decentraland/launcher/errs"
)

func writeZip(t *testing.T, dir string, build func(*zip.Writer)) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	build(w)
	if err := w.Close(); err != nil {
		t.Fatalf("failed to build zip: %v", err)
	}
	path := filepath.Join(dir, "archive.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func tarBytes(t *testing.T, build func(*tar.Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	build(w)
	if err := w.Close(); err != nil {
		t.Fatalf("failed to build tar: %v", err)
	}
	return buf.Bytes()
}

func addTarFile(t *testing.T, w *tar.Writer, name, content string) {
	t.Helper()
	if err := w.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
}

func addTarDir(t *testing.T, w *tar.Writer, name string) {
	t.Helper()
	if err := w.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatal(err)
	}
}

func TestDecompress(t *testing.T) {
	t.Run("extracts a nested tar preserving entry types", func(t *testing.T) {
		dir := t.TempDir()
		inner := tarBytes(t, func(w *tar.Writer) {
			addTarDir(t, w, "build/")
			addTarDir(t, w, "build/assets/")
			addTarFile(t, w, "build/Explorer", "binary-bytes")
			addTarFile(t, w, "build/assets/data.bin", "data")
		})
		source := writeZip(t, dir, func(w *zip.Writer) {
			f, err := w.Create("payload.tar")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := f.Write(inner); err != nil {
				t.Fatal(err)
			}
		})

		dest := filepath.Join(dir, "out")
		if err := Decompress(source, dest); err != nil {
			t.Fatalf("decompress failed: %v", err)
		}

		info, err := os.Stat(filepath.Join(dest, "build", "assets"))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory entry, got %v err=%v", info, err)
		}
		content, err := os.ReadFile(filepath.Join(dest, "build", "Explorer"))
		if err != nil {
			t.Fatalf("expected extracted file: %v", err)
		}
		if string(content) != "binary-bytes" {
			t.Errorf("unexpected file content %q", content)
		}
	})
	t.Run("extracts plain zip members when no tar is nested", func(t *testing.T) {
		dir := t.TempDir()
		source := writeZip(t, dir, func(w *zip.Writer) {
			f, err := w.Create("sub/readme.txt")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := f.Write([]byte("hello")); err != nil {
				t.Fatal(err)
			}
		})

		dest := filepath.Join(dir, "out")
		if err := Decompress(source, dest); err != nil {
			t.Fatalf("decompress failed: %v", err)
		}
		content, err := os.ReadFile(filepath.Join(dest, "sub", "readme.txt"))
		if err != nil {
			t.Fatalf("expected extracted file: %v", err)
		}
		if string(content) != "hello" {
			t.Errorf("unexpected content %q", content)
		}
	})
	t.Run("an empty nested tar yields an empty destination", func(t *testing.T) {
		dir := t.TempDir()
		inner := tarBytes(t, func(*tar.Writer) {})
		source := writeZip(t, dir, func(w *zip.Writer) {
			f, err := w.Create("payload.tar")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := f.Write(inner); err != nil {
				t.Fatal(err)
			}
		})

		dest := filepath.Join(dir, "out")
		if err := Decompress(source, dest); err != nil {
			t.Fatalf("decompress failed: %v", err)
		}
		entries, err := os.ReadDir(dest)
		if err != nil {
			t.Fatalf("destination directory missing: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty destination, got %v", entries)
		}
	})
	t.Run("missing source fails with file not found", func(t *testing.T) {
		dir := t.TempDir()
		err := Decompress(filepath.Join(dir, "nope.zip"), filepath.Join(dir, "out"))
		var stepErr *errs.StepError
		if !errors.As(err, &stepErr) || stepErr.Code != errs.CodeFileNotFound {
			t.Fatalf("expected file-not-found, got %v", err)
		}
	})
	t.Run("garbage input fails as a corrupted archive", func(t *testing.T) {
		dir := t.TempDir()
		source := filepath.Join(dir, "bad.zip")
		if err := os.WriteFile(source, []byte("this is not a zip"), 0o644); err != nil {
			t.Fatal(err)
		}
		err := Decompress(source, filepath.Join(dir, "out"))
		var stepErr *errs.StepError
		if !errors.As(err, &stepErr) || stepErr.Code != errs.CodeCorruptedArchive {
			t.Fatalf("expected corrupted-archive, got %v", err)
		}
	})
	t.Run("rejects entries escaping the destination", func(t *testing.T) {
		dir := t.TempDir()
		inner := tarBytes(t, func(w *tar.Writer) {
			addTarFile(t, w, "../outside.txt", "nope")
		})
		source := writeZip(t, dir, func(w *zip.Writer) {
			f, err := w.Create("payload.tar")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := f.Write(inner); err != nil {
				t.Fatal(err)
			}
		})

		if err := Decompress(source, filepath.Join(dir, "out")); err == nil {
			t.Fatal("expected traversal entry to be rejected")
		}
	})
}
