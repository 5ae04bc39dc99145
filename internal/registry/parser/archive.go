package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/kigyomail/internal/registry/domain"
)

// ExtractSingleFile returns the only CSV entry in a registry ZIP archive.
func ExtractSingleFile(archive []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFormat, err)
	}

	var csvFiles []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		csvFiles = append(csvFiles, f)
	}

	switch len(csvFiles) {
	case 0:
		return nil, fmt.Errorf("%w: no csv entry", domain.ErrFormat)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d csv entries", domain.ErrFormat, len(csvFiles))
	}

	rc, err := csvFiles[0].Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrFormat, csvFiles[0].Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFormat, csvFiles[0].Name, err)
	}
	return data, nil
}
