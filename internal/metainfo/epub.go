// epub.go implements the EPUB fallback extractor.
//
// An EPUB is a zip container: META-INF/container.xml names the OPF
// package document, whose Dublin Core metadata block carries title,
// creators, date, publisher, description and subjects. Only the metadata
// is read here; chapter text is not unpacked into full_text.

package metainfo

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Metadata struct {
		Titles      []string `xml:"title"`
		Creators    []string `xml:"creator"`
		Dates       []string `xml:"date"`
		Publisher   string   `xml:"publisher"`
		Description string   `xml:"description"`
		Subjects    []string `xml:"subject"`
		Identifiers []string `xml:"identifier"`
		Language    string   `xml:"language"`
	} `xml:"metadata"`
}

func fromEPUB(path string) (*ImportMetadata, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	var container epubContainer
	if err := readXML(&zr.Reader, "META-INF/container.xml", &container); err != nil {
		return nil, err
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, fmt.Errorf("container.xml names no rootfile")
	}

	var pkg epubPackage
	if err := readXML(&zr.Reader, container.Rootfiles[0].FullPath, &pkg); err != nil {
		return nil, err
	}

	md := pkg.Metadata
	meta := &ImportMetadata{
		Publisher: strings.TrimSpace(md.Publisher),
		Summary:   strings.TrimSpace(md.Description),
		Tags:      cleanList(md.Subjects),
	}
	if len(md.Titles) > 0 {
		meta.Title = strings.TrimSpace(md.Titles[0])
	}
	for _, c := range md.Creators {
		meta.Authors = append(meta.Authors, SplitAuthors(c)...)
	}
	if y := yearFromDates(md.Dates); y != 0 {
		meta.Year = &y
	}

	fm := map[string]any{}
	if len(md.Identifiers) > 0 {
		fm["identifier"] = strings.TrimSpace(md.Identifiers[0])
	}
	if md.Language != "" {
		fm["language"] = strings.TrimSpace(md.Language)
	}
	if len(fm) > 0 {
		meta.FileMetadata = fm
	}
	return meta, nil
}

// readXML decodes one named file out of the zip archive.
func readXML(zr *zip.Reader, name string, out any) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxFullText))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := xml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("%s not found in archive", name)
}

// yearFromDates pulls the first plausible four-digit year out of the
// dc:date values ("2024", "2024-01-15", RFC 3339 stamps).
func yearFromDates(dates []string) int {
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if len(d) >= 4 {
			if y, err := strconv.Atoi(d[:4]); err == nil && y > 0 {
				return y
			}
		}
	}
	return 0
}
