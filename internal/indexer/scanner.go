package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScannedImage represents an image file found during a corpus scan.
type ScannedImage struct {
	Filename string // Base filename (e.g. "00042.png")
	AbsPath  string // Absolute file path
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ScanCorpus lists the image files directly inside corpusPath, sorted by
// filename so ingestion order is stable across passes.
func ScanCorpus(corpusPath string) ([]ScannedImage, error) {
	entries, err := os.ReadDir(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory %s: %w", corpusPath, err)
	}

	var images []ScannedImage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(corpusPath, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path for %s: %w", entry.Name(), err)
		}
		images = append(images, ScannedImage{
			Filename: entry.Name(),
			AbsPath:  abs,
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Filename < images[j].Filename
	})
	return images, nil
}
