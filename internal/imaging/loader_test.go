package imaging

import (
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// createTestImage creates a PNG file with a solid color and returns its path
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := createInMemoryImage(width, height, c)

	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := createTestImage(t, 100, 50, color.NRGBA{255, 0, 0, 255})

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Errorf("expected 100x50, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	r, g, b, _ := img.At(10, 10).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("expected red pixel, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestLoad_JPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, createInMemoryImage(64, 48, color.Gray{128}), nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("unexpected size %v", img.Bounds())
	}
}

func TestLoad_NonExistent(t *testing.T) {
	if _, err := Load("/nonexistent/path/image.png"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoad_InvalidImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("failed to create invalid file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid image")
	}
}

func TestSave(t *testing.T) {
	// Parent directories are created on demand.
	path := filepath.Join(t.TempDir(), "out", "nested", "photo.png")
	src := createPatternImage(40, 40)
	src.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 0})

	if err := Save(path, src); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Errorf("bounds changed: %v", img.Bounds())
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Error("transparency must survive a PNG round trip")
	}
}

func TestSave_AlwaysPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := Save(path, createInMemoryImage(8, 8, color.White)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Format != "png" {
		t.Errorf("expected png regardless of extension, got %s", info.Format)
	}
}

func TestSave_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Save(filepath.Join(blocker, "out.png"), createInMemoryImage(2, 2, color.White)); err == nil {
		t.Error("expected error when the parent is a file")
	}
}

func TestInspect(t *testing.T) {
	path := createTestImage(t, 120, 90, color.White)

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if info.Width != 120 || info.Height != 90 {
		t.Errorf("expected 120x90, got %dx%d", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("expected png, got %s", info.Format)
	}

	stat, _ := os.Stat(path)
	if info.FileSizeBytes != stat.Size() {
		t.Errorf("file size: got %d, want %d", info.FileSizeBytes, stat.Size())
	}
}

func TestInspect_NonExistent(t *testing.T) {
	if _, err := Inspect("/nonexistent/path/image.png"); err == nil {
		t.Error("expected error for non-existent file")
	}
}
