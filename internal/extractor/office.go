package extractor

import (
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/xuri/excelize/v2"
)

// extractOfficeText dispatches within the Office family by extension:
// .docx via fumiama/go-docx, .xlsx via xuri/excelize (both pinned in the
// other_examples manifests alongside this domain's other office tooling).
// Legacy binary formats (.doc, .ppt, .xls) and .pptx have no parser wired
// and fall through to "no chunks", matching the spec's capability-gated
// Office/PDF/Image handling.
func extractOfficeText(path, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".docx":
		return extractDocxText(path)
	case ".xlsx":
		return extractXlsxText(path)
	default:
		return "", nil
	}
}

func extractDocxText(path string) (string, error) {
	readFile, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = readFile.Close() }()

	doc := readFile.Editable()
	return doc.GetContent(), nil
}

func extractXlsxText(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
