package services

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCount returns the number of pages in a PDF. It fails closed: anything that
// cannot be read as a PDF (corrupt, encrypted, another format) counts as 0 pages.
func PageCount(rs io.ReadSeeker, logger *slog.Logger) (n int) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("PDF parser panicked; treating document as empty.", "panic", r)
			n = 0
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(rs, conf)
	if err != nil {
		logger.Warn("Could not read PDF page count; treating document as empty.", "error", err)
		return 0
	}
	return count
}

// PageCountFile is PageCount for a file on disk.
func PageCountFile(path string, logger *slog.Logger) int {
	f, err := os.Open(path)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Could not open PDF; treating document as empty.", "path", path, "error", err)
		return 0
	}
	defer f.Close()
	return PageCount(f, logger)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
