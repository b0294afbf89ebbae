package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const wordprocessingML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const documentPart = "word/document.xml"

// extractDOCX reads the OOXML package at filePath and returns the text of its
// headers, main document and footers, in that order. Formatting, images and
// other embedded objects are dropped.
func extractDOCX(filePath string) (Result, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open DOCX package: %w", err)
	}
	defer zr.Close()

	var body *zip.File
	var headers, footers []*zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == documentPart:
			body = f
		case isPart(f.Name, "word/header"):
			headers = append(headers, f)
		case isPart(f.Name, "word/footer"):
			footers = append(footers, f)
		}
	}
	if body == nil {
		return Result{}, fmt.Errorf("DOCX package has no %s", documentPart)
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
	sort.Slice(footers, func(i, j int) bool { return footers[i].Name < footers[j].Name })

	parts := append(append(headers, body), footers...)
	var sb strings.Builder
	for _, part := range parts {
		if err := writePartText(&sb, part); err != nil {
			return Result{}, fmt.Errorf("failed to read %s: %w", part.Name, err)
		}
	}
	return Result{Text: sb.String()}, nil
}

func isPart(name, prefix string) bool {
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".xml") && !strings.Contains(name[len(prefix):], "/")
}

// writePartText streams one XML part, keeping run text, tabs and breaks and
// ending each paragraph with a newline.
func writePartText(sb *strings.Builder, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var inText bool
	var runDepth int
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessingML {
				continue
			}
			switch t.Name.Local {
			case "r":
				runDepth++
			case "t":
				inText = true
			case "tab":
				if runDepth > 0 {
					sb.WriteByte('\t')
				}
			case "br", "cr":
				if runDepth > 0 {
					sb.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessingML {
				continue
			}
			switch t.Name.Local {
			case "r":
				runDepth--
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
}
