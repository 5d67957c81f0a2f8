package service

import (
	"bytes"
	"errors"
	"testing"
)

func TestLabelName(t *testing.T) {
	tests := map[string]string{
		"1.JPG":             "1.png",
		"img.final.jpeg":    "img.png",
		"dir/sub/photo.png": "photo.png",
		"noext":             "noext.png",
		".hidden":           "",
	}
	for in, want := range tests {
		if got := LabelName(in); got != want {
			t.Errorf("LabelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDatasetFromPath(t *testing.T) {
	if got := DatasetFromPath("./datasets/test1/images/1.JPG"); got != "test1" {
		t.Fatalf("got %q", got)
	}
	if got := DatasetFromPath("/images/1.JPG"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	s := NewDatasetService(t.TempDir())

	if _, err := s.LoadLabel("test1", "1.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	data := []byte("png-bytes")
	if err := s.SaveLabel("test1", "1.png", data); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadLabel("test1", "1.png")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q", got)
	}

	if err := s.SaveImage("test1", "1.JPG", []byte("jpg")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadImage("test1", "1.JPG"); err != nil {
		t.Fatal(err)
	}
}

func TestDatasetRejectsTraversal(t *testing.T) {
	s := NewDatasetService(t.TempDir())
	for _, name := range []string{"..", "../x.png", "a/b.png", ""} {
		if err := s.SaveLabel("test1", name, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("SaveLabel(%q) error = %v", name, err)
		}
	}
	if _, err := s.LoadImage("..", "1.png"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("dataset traversal not rejected: %v", err)
	}
}
