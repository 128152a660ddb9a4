package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var reNewlines = regexp.MustCompile(`\n{3,}`)

func openZipEntry(content []byte, name string) (io.ReadCloser, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == name {
			entry = f
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%s not found in archive", name)
	}
	if entry.UncompressedSize64 > docXMLMax {
		return nil, fmt.Errorf("%s too large: %d bytes", name, entry.UncompressedSize64)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return rc, nil
}

func cleanupParsedText(text string) []byte {
	text = strings.TrimSpace(text)
	text = reNewlines.ReplaceAllString(text, "\n\n")

	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	return []byte(text)
}

func parseDocx(content []byte) ([]byte, error) {
	rc, err := openZipEntry(content, "word/document.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, int64(docXMLMax)))

	var sb strings.Builder
	type state struct {
		inText    bool
		delDepth  int
		insideTbl bool
		cellIdx   int
	}
	st := state{}

	writeNewline := func() {
		if sb.Len() == 0 {
			return
		}
		if !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "del":
				st.delDepth++
			case "t":
				st.inText = true
			case "tab":
				if st.delDepth == 0 {
					sb.WriteRune('\t')
				}
			case "br", "cr":
				if st.delDepth == 0 {
					sb.WriteByte('\n')
				}
			case "noBreakHyphen":
				if st.delDepth == 0 {
					sb.WriteRune('-')
				}
			case "softHyphen":
			case "tbl":
				st.insideTbl = true
				st.cellIdx = 0
				writeNewline()
			case "tr":
				st.cellIdx = 0
			case "tc":
				if st.insideTbl && st.delDepth == 0 {
					if st.cellIdx > 0 {
						sb.WriteRune('\t')
					}
					st.cellIdx++
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				st.inText = false
			case "p":
				if st.delDepth == 0 {
					sb.WriteByte('\n')
				}
			case "tr":
				if st.delDepth == 0 {
					sb.WriteByte('\n')
				}
			case "tbl":
				st.insideTbl = false
				if st.delDepth == 0 {
					sb.WriteByte('\n')
				}
			case "del":
				if st.delDepth > 0 {
					st.delDepth--
				}
			}

		case xml.CharData:
			if st.delDepth != 0 || !st.inText {
				continue
			}
			sb.WriteString(string([]byte(t)))
		}
	}

	return cleanupParsedText(sb.String()), nil
}

func parseODT(content []byte) ([]byte, error) {
	rc, err := openZipEntry(content, "content.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, int64(docXMLMax)))

	var sb strings.Builder
	type state struct {
		paraDepth int
		noteDepth int
		insideTbl bool
		cellIdx   int
	}
	st := state{}

	writeNewline := func() {
		if sb.Len() == 0 {
			return
		}
		if !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "note", "annotation":
				st.noteDepth++
			case "p", "h":
				st.paraDepth++
			case "tab":
				if st.noteDepth == 0 && st.paraDepth > 0 {
					sb.WriteRune('\t')
				}
			case "line-break":
				if st.noteDepth == 0 && st.paraDepth > 0 {
					sb.WriteByte('\n')
				}
			case "s":
				if st.noteDepth == 0 && st.paraDepth > 0 {
					count := 1
					for _, attr := range t.Attr {
						if attr.Name.Local == "c" {
							if n, err := strconv.Atoi(attr.Value); err == nil && n > 0 {
								count = n
							}
						}
					}
					sb.WriteString(strings.Repeat(" ", count))
				}
			case "table":
				st.insideTbl = true
				st.cellIdx = 0
				writeNewline()
			case "table-row":
				st.cellIdx = 0
			case "table-cell":
				if st.insideTbl && st.noteDepth == 0 {
					if st.cellIdx > 0 {
						sb.WriteRune('\t')
					}
					st.cellIdx++
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "note", "annotation":
				if st.noteDepth > 0 {
					st.noteDepth--
				}
			case "p", "h":
				if st.paraDepth > 0 {
					st.paraDepth--
				}
				if st.noteDepth == 0 {
					sb.WriteByte('\n')
				}
			case "table-row":
				if st.noteDepth == 0 {
					sb.WriteByte('\n')
				}
			case "table":
				st.insideTbl = false
				if st.noteDepth == 0 {
					sb.WriteByte('\n')
				}
			}

		case xml.CharData:
			if st.noteDepth != 0 || st.paraDepth == 0 {
				continue
			}
			sb.WriteString(string([]byte(t)))
		}
	}

	return cleanupParsedText(sb.String()), nil
}
