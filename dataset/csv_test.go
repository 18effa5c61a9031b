package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/books-harvest/models"
)

func sampleBooks() []*models.Book {
	return []*models.Book{
		{
			ID:             "a-light-in-the-attic_1000",
			Title:          "A Light in the Attic",
			Price:          51.77,
			Stock:          22,
			Rating:         3,
			Category:       "Poetry",
			ProductPageURL: "https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html",
			UPC:            "a897fe39b1053632",
			Description:    "It's hard to imagine a world without, \"quoted\", text",
			ImageURL:       "https://books.toscrape.com/catalogue/media/cache/fe/72/cover.jpg",
		},
		{
			ID:             "tipping-the-velvet_999",
			Title:          "Tipping the Velvet",
			Price:          53.74,
			Stock:          0,
			Rating:         0,
			ProductPageURL: "https://books.toscrape.com/catalogue/tipping-the-velvet_999/index.html",
		},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func publishCSV(t *testing.T, path string, books []*models.Book) {
	t.Helper()
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter() error = %v", err)
	}
	if err := Publish(w, books); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "books.csv")
	publishCSV(t, path, sampleBooks())

	books, stats, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if stats != (ReadStats{Rows: 2, Loaded: 2}) {
		t.Fatalf("stats = %+v, want 2 rows loaded", stats)
	}
	if !reflect.DeepEqual(books, sampleBooks()) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", books, sampleBooks())
	}
}

func TestCSVHeaderOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")
	publishCSV(t, path, sampleBooks()[1:])

	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header + 1 row", len(lines))
	}
	if want := "id,title,price,stock,rating,category,product_page_url,upc,description,image_url"; lines[0] != want {
		t.Fatalf("header = %q, want %q", lines[0], want)
	}
	if want := "tipping-the-velvet_999,Tipping the Velvet,53.74,0,0,,https://books.toscrape.com/catalogue/tipping-the-velvet_999/index.html,,,"; lines[1] != want {
		t.Fatalf("row = %q, want %q", lines[1], want)
	}
}

func TestCSVAbortKeepsPreviousDataset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books.csv")
	writeFile(t, path, "previous")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter() error = %v", err)
	}
	if err := w.Write(sampleBooks()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	if got := readFile(t, path); got != "previous" {
		t.Fatalf("destination = %q, want previous content", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, staging file should be removed", len(entries))
	}
}

func TestCSVCloseReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")
	writeFile(t, path, "previous")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter() error = %v", err)
	}
	if got := readFile(t, path); got != "previous" {
		t.Fatalf("destination changed before Close: %q", got)
	}
	if err := Publish(w, sampleBooks()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	books, _, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("books = %d, want 2", len(books))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestReadCSVSkipsInvalidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")
	writeFile(t, path, "\ufeffid,title,price,stock,rating,product_page_url\n"+
		"ok-1,Good,10.5,3,4,http://x/ok-1/index.html\n"+
		"bad-price,Bad,abc,3,4,http://x/bad/index.html\n"+
		",No id,1,1,1,http://x/noid/index.html\n"+
		"bad-rating,Bad rating,1,1,9,http://x/r/index.html\n"+
		"short-row,Short\n"+
		"empty-numbers,Empty,,,,http://x/e/index.html\n")

	books, stats, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if stats != (ReadStats{Rows: 6, Loaded: 2, Skipped: 4}) {
		t.Fatalf("stats = %+v", stats)
	}
	if len(books) != 2 {
		t.Fatalf("books = %d, want 2", len(books))
	}
	if books[0].ID != "ok-1" || books[0].Price != 10.5 {
		t.Fatalf("first book = %+v", books[0])
	}
	if books[1].ID != "empty-numbers" || books[1].Price != 0 || books[1].Category != "" {
		t.Fatalf("second book = %+v", books[1])
	}
}

func TestReadCSVToleratesStrayQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")
	writeFile(t, path, "id,title,price,product_page_url\n"+
		"first_1,First,1.00,http://x/first_1/index.html\n"+
		"single_2,The 12\" Single,2.00,http://x/single_2/index.html\n"+
		"third_3,Third,3.00,http://x/third_3/index.html\n")

	books, stats, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if stats.Loaded != 3 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v, want all three rows loaded", stats)
	}
	if books[1].Title != `The 12" Single` {
		t.Fatalf("title = %q", books[1].Title)
	}
	if books[2].ID != "third_3" {
		t.Fatalf("rows after the stray quote should still load, got %+v", books[2])
	}
}

func TestReadCSVErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		create  bool
	}{
		{name: "missing file", file: "missing.csv"},
		{name: "empty file", file: "empty.csv", create: true},
		{name: "missing required column", file: "short.csv", content: "id,title,price\nx,y,1\n", create: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if tt.create {
				writeFile(t, path, tt.content)
			}
			_, _, err := ReadCSV(path)
			var ioErr *IOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("err = %v, want *IOError", err)
			}
			if ioErr.Path != path {
				t.Fatalf("path = %q, want %q", ioErr.Path, path)
			}
		})
	}
}
