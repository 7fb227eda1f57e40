package finance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Spreadsheet column headers.
const (
	ColSiteName              = "Site Name"
	ColCompanyName           = "Company Name"
	ColContractAmount        = "Contract Amount"
	ColContractManagementFee = "Contract Management Fee"
	ColBilledAmount          = "Billed Amount"
	ColBilledManagementFee   = "Billed Management Fee"
)

// Columns is the spreadsheet layout shared by import and export.
var Columns = []string{
	ColSiteName,
	ColCompanyName,
	ColContractAmount,
	ColContractManagementFee,
	ColBilledAmount,
	ColBilledManagementFee,
}

// ReadImport parses a spreadsheet into record inputs for month. Columns are
// matched by header, case-insensitively, in any order; only Site Name is
// mandatory. Blank lines are skipped. Rows keep their order so bulk results
// line up with the file.
func ReadImport(r io.Reader, month time.Time) ([]RecordInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "file", Reason: "is empty"}
	}
	if err != nil {
		return nil, &ValidationError{Field: "file", Reason: err.Error()}
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		index[strings.ToLower(h)] = i
	}
	if _, ok := index[strings.ToLower(ColSiteName)]; !ok {
		return nil, &ValidationError{Field: "file", Reason: fmt.Sprintf("missing %q column", ColSiteName)}
	}
	cell := func(row []string, col string) string {
		i, ok := index[strings.ToLower(col)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	billingMonth := MonthStart(month).Format("2006-01")
	var out []RecordInput
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ValidationError{Field: "file", Reason: err.Error()}
		}
		if blank(row) {
			continue
		}
		out = append(out, RecordInput{
			SiteName:              cell(row, ColSiteName),
			CompanyName:           cell(row, ColCompanyName),
			BillingMonth:          billingMonth,
			ContractAmount:        RawAmount(cell(row, ColContractAmount)),
			ContractManagementFee: RawAmount(cell(row, ColContractManagementFee)),
			BilledAmount:          RawAmount(cell(row, ColBilledAmount)),
			BilledManagementFee:   RawAmount(cell(row, ColBilledManagementFee)),
		})
	}
	if len(out) == 0 {
		return nil, &ValidationError{Field: "file", Reason: "has no data rows"}
	}
	return out, nil
}

// WriteExport writes records in the spreadsheet layout.
func WriteExport(w io.Writer, recs []Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return err
	}
	for _, rec := range recs {
		row := []string{
			escapeCell(rec.SiteName),
			escapeCell(rec.CompanyName),
			rec.ContractAmount.StringFixed(2),
			rec.ContractManagementFee.StringFixed(2),
			rec.BilledAmount.StringFixed(2),
			rec.BilledManagementFee.StringFixed(2),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// escapeCell keeps spreadsheet applications from evaluating text as a formula.
func escapeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
