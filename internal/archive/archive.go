// Package archive files receipt documents into a year/month/category
// folder hierarchy under a configured base path.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Filer writes documents into the archive tree:
//
//	base/YYYY/MM/category/YYYY-MM-DD_CURamount_description.pdf
//
// Credit card receipts are filed in the following month, since that is
// when they hit the statement.
type Filer struct {
	basePath string
}

// NewFiler creates a filer rooted at basePath.
func NewFiler(basePath string) *Filer {
	return &Filer{basePath: basePath}
}

// BasePath returns the archive root.
func (f *Filer) BasePath() string {
	return f.basePath
}

// TargetMonth returns the filing year and month for date, shifted one
// month ahead for credit card receipts.
func (f *Filer) TargetMonth(date time.Time, creditCard bool) (int, time.Month) {
	year, month := date.Year(), date.Month()
	if creditCard {
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return year, month
}

// File writes data into the archive and returns the resulting path.
// The amount's decimal dot becomes a hyphen so the filename carries no
// extra dots. An existing file with the same name gets a _NN counter
// suffix instead of being overwritten.
func (f *Filer) File(
	data []byte,
	date time.Time,
	description, category string,
	creditCard bool,
	currency, amount string,
) (string, error) {
	if f.basePath == "" {
		return "", fmt.Errorf("archive base path not configured")
	}

	year, month := f.TargetMonth(date, creditCard)
	targetDir := filepath.Join(
		f.basePath,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", month),
		category,
	)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir %s: %w", targetDir, err)
	}

	dateStr := date.Format("2006-01-02")

	var baseName string
	if currency != "" && amount != "" {
		baseName = fmt.Sprintf(
			"%s_%s%s_%s",
			dateStr, currency, strings.ReplaceAll(amount, ".", "-"), description,
		)
	} else {
		baseName = fmt.Sprintf("%s_%s", dateStr, description)
	}

	targetPath := filepath.Join(targetDir, baseName+".pdf")
	for counter := 1; fileExists(targetPath); counter++ {
		targetPath = filepath.Join(
			targetDir, fmt.Sprintf("%s_%02d.pdf", baseName, counter),
		)
	}

	if err := os.WriteFile(targetPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing archive file %s: %w", targetPath, err)
	}

	return targetPath, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
