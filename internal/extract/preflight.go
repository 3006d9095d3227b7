package extract

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PreflightResult summarizes a structural validation.
type PreflightResult struct {
	// PageCount is the page count read by the validator.
	PageCount int
}

// Preflight validates the file's structure in relaxed mode before extraction.
// Failures wrap ErrPreflightFailed.
func Preflight(path string) (PreflightResult, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	if err := api.ValidateFile(path, conf); err != nil {
		return PreflightResult{}, fmt.Errorf("%w: %w", ErrPreflightFailed, err)
	}

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return PreflightResult{}, fmt.Errorf("%w: %w", ErrPreflightFailed, err)
	}

	return PreflightResult{PageCount: ctx.PageCount}, nil
}
