package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// zipFormat describes a zip-packaged XML document: which parts carry text and
// which elements hold it. Each matched part becomes one paragraph.
type zipFormat struct {
	name     string
	parts    func(name string) bool
	elements *regexp.Regexp
}

var (
	wordprocessing = zipFormat{
		name:     "DOCX",
		parts:    func(n string) bool { return n == "word/document.xml" },
		elements: regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`),
	}
	presentation = zipFormat{
		name: "PPTX",
		parts: func(n string) bool {
			return strings.HasPrefix(n, "ppt/slides/slide") && strings.HasSuffix(n, ".xml")
		},
		elements: regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`),
	}
	openDocument = zipFormat{
		name:     "OpenDocument",
		parts:    func(n string) bool { return n == "content.xml" },
		elements: regexp.MustCompile(`<text:(?:p|h|span)(?:\s[^>]*)?>([^<]*)</text:(?:p|h|span)>`),
	}
)

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func (f zipFormat) extract(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract %s: not a zip: %w", f.name, err)
	}
	var files []*zip.File
	for _, zf := range zr.File {
		if f.parts(zf.Name) {
			files = append(files, zf)
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("extract %s: no text parts found", f.name)
	}
	// slide10.xml sorts after slide9.xml
	sort.Slice(files, func(i, j int) bool {
		a, b := files[i].Name, files[j].Name
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})

	paragraphs := make([]string, 0, len(files))
	for _, zf := range files {
		xml, err := readZipFile(zf)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", f.name, err)
		}
		var words []string
		for _, m := range f.elements.FindAllStringSubmatch(xml, -1) {
			if t := strings.TrimSpace(xmlEntities.Replace(m[1])); t != "" {
				words = append(words, t)
			}
		}
		if len(words) > 0 {
			paragraphs = append(paragraphs, strings.Join(words, " "))
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func readZipFile(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", zf.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", zf.Name, err)
	}
	return string(b), nil
}
