package bqship

import (
	"bufio"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
)

// readHeader returns the first line of the file, decoded and stripped of
// its line terminator. It is used to derive the destination schema when no
// explicit header is configured.
func readHeader(path string, enc encoding.Encoding) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", xerrors.Errorf("failed to read header of %s: %w", path, err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// schemaFromHeader maps every column of the header line to STRING, in
// ordinal position. No type inference.
func schemaFromHeader(header, delimiter string) (bigquery.Schema, error) {
	if header == "" {
		return nil, xerrors.New("empty header line")
	}

	cols := strings.Split(header, delimiter)
	schema := make(bigquery.Schema, 0, len(cols))

	for _, c := range cols {
		name := strings.TrimSpace(c)
		if name == "" {
			return nil, xerrors.Errorf("empty column name in header %q", header)
		}
		schema = append(schema, &bigquery.FieldSchema{Name: name, Type: bigquery.StringFieldType})
	}

	return schema, nil
}
