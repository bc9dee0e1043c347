package extractor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"GiftSend/internal/models"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeXLS  = "application/vnd.ms-excel"
	ContentTypeCSV  = "text/csv"
	ContentTypeText = "text/plain"
)

// Accepted reports whether contentType may be uploaded.
func Accepted(contentType string) bool {
	switch baseType(contentType) {
	case ContentTypeXLSX, ContentTypeXLS, ContentTypeCSV:
		return true
	}
	return false
}

// ContentTypeFor guesses the content type of a local file from its extension.
func ContentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ContentTypeXLSX
	case ".xls":
		return ContentTypeXLS
	case ".csv":
		return ContentTypeCSV
	case ".txt":
		return ContentTypeText
	}
	return ""
}

// ExtractFile reads and scans the file at path.
func ExtractFile(path, contentType string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, &models.ParseError{Err: err}
	}
	defer f.Close()

	return ExtractReader(f, contentType)
}

// ExtractReader reads and scans r. A successful parse without any
// address yields ErrNoEmails.
func ExtractReader(r io.Reader, contentType string) (Result, error) {
	var res Result

	if baseType(contentType) == ContentTypeText {
		data, err := io.ReadAll(r)
		if err != nil {
			return Result{}, &models.ParseError{Err: err}
		}
		res = ExtractFromText(string(data))
	} else {
		doc, err := Read(r, contentType)
		if err != nil {
			return Result{}, err
		}
		res = Extract(doc)
	}

	if len(res.Emails) == 0 {
		return Result{}, ErrNoEmails
	}
	return res, nil
}

// Read decodes r into a Document according to contentType.
func Read(r io.Reader, contentType string) (Document, error) {
	switch baseType(contentType) {
	case ContentTypeXLSX, ContentTypeXLS:
		return readWorkbook(r)
	case ContentTypeCSV:
		return readCSV(r)
	}
	return Document{}, &models.ParseError{Err: fmt.Errorf("unsupported content type %q", contentType)}
}

func readWorkbook(r io.Reader) (Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Document{}, &models.ParseError{Err: err}
	}
	defer f.Close()

	var doc Document
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return Document{}, &models.ParseError{Err: fmt.Errorf("sheet %q: %w", name, err)}
		}

		sheet := Sheet{Name: name, Rows: make([][]Cell, 0, len(rows))}
		for ri, row := range rows {
			cells := make([]Cell, len(row))
			for ci, v := range row {
				if v == "" {
					continue
				}
				ref, err := excelize.CoordinatesToCellName(ci+1, ri+1)
				if err != nil {
					return Document{}, &models.ParseError{Err: err}
				}
				typ, err := f.GetCellType(name, ref)
				if err != nil {
					return Document{}, &models.ParseError{Err: err}
				}
				cells[ci] = Cell{Value: v, Kind: workbookKind(typ, v)}
			}
			sheet.Rows = append(sheet.Rows, cells)
		}
		doc.Sheets = append(doc.Sheets, sheet)
	}

	return doc, nil
}

func workbookKind(typ excelize.CellType, v string) CellKind {
	switch typ {
	case excelize.CellTypeNumber, excelize.CellTypeDate, excelize.CellTypeBool:
		return Number
	case excelize.CellTypeUnset:
		// untyped cells are numeric in OOXML unless they hold text
		if isNumeric(v) {
			return Number
		}
	}
	return String
}

func readCSV(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, &models.ParseError{Err: err}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return Document{}, &models.ParseError{Err: err}
	}

	sheet := Sheet{Name: "Sheet1", Rows: make([][]Cell, 0, len(records))}
	for _, record := range records {
		cells := make([]Cell, len(record))
		for i, v := range record {
			switch {
			case strings.TrimSpace(v) == "":
				cells[i] = Cell{}
			case isNumeric(v):
				cells[i] = Cell{Value: v, Kind: Number}
			default:
				cells[i] = Cell{Value: v, Kind: String}
			}
		}
		sheet.Rows = append(sheet.Rows, cells)
	}

	return Document{Sheets: []Sheet{sheet}}, nil
}

func isNumeric(v string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}

func baseType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// IsParseError reports whether err came from decoding a document.
func IsParseError(err error) bool {
	var pe *models.ParseError
	return errors.As(err, &pe)
}
