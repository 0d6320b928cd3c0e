package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/CyberBigfoot/CleanSheet/internal/errs"
)

// Catalog-level keys that carry executable or embedded payloads.
var catalogThreats = []string{"OpenAction", "AA", "AcroForm"}

// Name-tree entries that carry executable or embedded payloads.
var nameTreeThreats = []string{"JavaScript", "EmbeddedFiles"}

// Page-level keys for annotations and page actions.
var pageThreats = []string{"Annots", "AA", "A"}

// Disarm strips every active-content construct from the normalized PDF:
// document JavaScript, embedded files, the interactive form dictionary,
// open actions, page actions, and annotations. After stripping, the result
// is re-opened and re-scanned; anything still present means the document
// uses a construct this stage does not understand, and the stage fails
// closed rather than passing it through.
func Disarm(ctx context.Context, input, output string) error {
	_ = ctx

	pdf, err := api.ReadContextFile(input)
	if err != nil {
		return errs.Wrap(errs.KindConversionFailure, "open normalized pdf", err)
	}

	if err := scrub(pdf); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "strip active content", err)
	}

	if err := api.WriteContextFile(pdf, output); err != nil {
		return errs.Wrap(errs.KindConversionFailure, "write disarmed pdf", err)
	}

	// Fail-closed re-check on the written artifact.
	clean, err := api.ReadContextFile(output)
	if err != nil {
		return errs.Wrap(errs.KindReconstructionInvalid, "reopen disarmed pdf", err)
	}
	remaining, err := findActiveContent(clean)
	if err != nil {
		return errs.Wrap(errs.KindReconstructionInvalid, "rescan disarmed pdf", err)
	}
	if len(remaining) > 0 {
		return errs.New(errs.KindReconstructionInvalid,
			fmt.Sprintf("active content survived disarm: %s", strings.Join(remaining, ", ")))
	}

	log.Debug().Msg("active content stripped")
	return nil
}

func scrub(pdf *model.Context) error {
	root, err := pdf.Catalog()
	if err != nil {
		return fmt.Errorf("document catalog: %w", err)
	}

	for _, key := range catalogThreats {
		delete(root, key)
	}

	if namesObj, ok := root["Names"]; ok {
		names, err := pdf.DereferenceDict(namesObj)
		if err != nil {
			return fmt.Errorf("names dictionary: %w", err)
		}
		for _, key := range nameTreeThreats {
			delete(names, key)
		}
	}

	if pagesObj, ok := root["Pages"]; ok {
		if err := scrubPageTree(pdf, pagesObj); err != nil {
			return err
		}
	}
	return nil
}

func scrubPageTree(pdf *model.Context, node types.Object) error {
	d, err := pdf.DereferenceDict(node)
	if err != nil {
		return fmt.Errorf("page tree node: %w", err)
	}
	if d == nil {
		return nil
	}

	for _, key := range pageThreats {
		delete(d, key)
	}

	kidsObj, ok := d["Kids"]
	if !ok {
		return nil
	}
	kids, err := pdf.DereferenceArray(kidsObj)
	if err != nil {
		return fmt.Errorf("page tree kids: %w", err)
	}
	for _, kid := range kids {
		if err := scrubPageTree(pdf, kid); err != nil {
			return err
		}
	}
	return nil
}

// findActiveContent reports every threat construct still reachable from
// the document catalog. Shared by the disarm re-check and the validate
// stage.
func findActiveContent(pdf *model.Context) ([]string, error) {
	root, err := pdf.Catalog()
	if err != nil {
		return nil, fmt.Errorf("document catalog: %w", err)
	}

	var found []string
	for _, key := range catalogThreats {
		if _, ok := root[key]; ok {
			found = append(found, key)
		}
	}

	if namesObj, ok := root["Names"]; ok {
		names, err := pdf.DereferenceDict(namesObj)
		if err != nil {
			return nil, fmt.Errorf("names dictionary: %w", err)
		}
		for _, key := range nameTreeThreats {
			if _, ok := names[key]; ok {
				found = append(found, "Names/"+key)
			}
		}
	}

	if pagesObj, ok := root["Pages"]; ok {
		pageFound, err := findInPageTree(pdf, pagesObj)
		if err != nil {
			return nil, err
		}
		found = append(found, pageFound...)
	}
	return found, nil
}

func findInPageTree(pdf *model.Context, node types.Object) ([]string, error) {
	d, err := pdf.DereferenceDict(node)
	if err != nil {
		return nil, fmt.Errorf("page tree node: %w", err)
	}
	if d == nil {
		return nil, nil
	}

	var found []string
	for _, key := range pageThreats {
		if _, ok := d[key]; ok {
			found = append(found, "Page/"+key)
		}
	}

	if kidsObj, ok := d["Kids"]; ok {
		kids, err := pdf.DereferenceArray(kidsObj)
		if err != nil {
			return nil, fmt.Errorf("page tree kids: %w", err)
		}
		for _, kid := range kids {
			kidFound, err := findInPageTree(pdf, kid)
			if err != nil {
				return nil, err
			}
			found = append(found, kidFound...)
		}
	}
	return found, nil
}
