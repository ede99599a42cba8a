// Package osmfile opens OSM data files of any supported format and hands
// back one uniform feature scanner. The format is guessed from the file
// extension, or forced explicitly; gzip and bzip2 wrapping around XML is
// handled transparently.
package osmfile

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wegman-software/osmstream/osm"
	"github.com/wegman-software/osmstream/osmpbf"
	"github.com/wegman-software/osmstream/osmxml"
)

// Format identifies how a source is encoded on disk.
type Format string

const (
	FormatXML   Format = "xml"
	FormatGzip  Format = "gz"
	FormatBzip2 Format = "bz2"
	FormatPBF   Format = "pbf"
)

// DetectFormat guesses the format from a file name's extension.
func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".osm"), strings.HasSuffix(name, ".xml"):
		return FormatXML, nil
	case strings.HasSuffix(name, ".osm.gz"), strings.HasSuffix(name, ".xml.gz"):
		return FormatGzip, nil
	case strings.HasSuffix(name, ".osm.bz2"), strings.HasSuffix(name, ".xml.bz2"):
		return FormatBzip2, nil
	case strings.HasSuffix(name, ".osm.pbf"), strings.HasSuffix(name, ".osm.pb"):
		return FormatPBF, nil
	default:
		return "", fmt.Errorf("unable to guess OSM file format for file name %q", path)
	}
}

// ParseFormat validates a user-supplied format name. An empty name means
// "guess from the extension" and is returned as-is.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case "", FormatXML, FormatGzip, FormatBzip2, FormatPBF:
		return Format(name), nil
	default:
		return "", fmt.Errorf("invalid OSM file format %q", name)
	}
}

// NewScanner wraps r in the scanner for the given format. The reader is
// borrowed, never closed.
func NewScanner(r io.Reader, format Format) (osm.Scanner, error) {
	switch format {
	case FormatXML:
		return osmxml.NewScanner(r), nil
	case FormatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return osmxml.NewScanner(gz), nil
	case FormatBzip2:
		return osmxml.NewScanner(bzip2.NewReader(r)), nil
	case FormatPBF:
		return osmpbf.NewScanner(r), nil
	default:
		return nil, fmt.Errorf("invalid OSM file format %q", format)
	}
}

// File is an opened OSM data file. It implements osm.Scanner; Close
// releases the underlying file handle.
type File struct {
	osm.Scanner
	f      *os.File
	format Format
}

// Format returns the format the file was opened as.
func (f *File) Format() Format { return f.format }

// Close closes the scanner and the underlying file.
func (f *File) Close() error {
	if err := f.Scanner.Close(); err != nil {
		f.f.Close()
		return err
	}
	return f.f.Close()
}

// Open opens path, guessing the format from its extension. Pass a
// non-empty format to override the guess.
func Open(path string, format Format) (*File, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	scanner, err := NewScanner(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{Scanner: scanner, f: f, format: format}, nil
}
