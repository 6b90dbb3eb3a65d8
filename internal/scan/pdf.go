package scan

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFValidator checks that primary documents are readable PDFs before
// they are handed to the uploader.
type PDFValidator struct {
	conf *pdfmodel.Configuration
}

// NewPDFValidator returns a validator using pdfcpu's relaxed mode, which
// accepts the minor structural defects common in scanned books.
func NewPDFValidator() *PDFValidator {
	api.DisableConfigDir()
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return &PDFValidator{conf: conf}
}

// Validate returns the page count of the PDF at path.
func (v *PDFValidator) Validate(path string) (int, error) {
	if err := api.ValidateFile(path, v.conf); err != nil {
		return 0, fmt.Errorf("validate %s: %w", path, err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages %s: %w", path, err)
	}
	if pages == 0 {
		return 0, fmt.Errorf("validate %s: no pages", path)
	}
	return pages, nil
}
