package convert

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// MergePDFs concatenates inputs into output, preserving order.
func MergePDFs(inputs []string, output string) error {
	if len(inputs) == 0 {
		return ErrNoInput
	}
	if err := api.MergeCreateFile(inputs, output, false, pdfConfig()); err != nil {
		return fmt.Errorf("failed to merge PDFs: %w", err)
	}
	return nil
}

// ValidatePDF checks that data parses as a PDF document.
func ValidatePDF(data []byte) error {
	if err := api.Validate(bytes.NewReader(data), pdfConfig()); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	return nil
}

// PageCount returns the number of pages in a PDF held in memory.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), pdfConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	return n, nil
}
