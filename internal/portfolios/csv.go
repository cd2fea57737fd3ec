package portfolios

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stockfolio-backend/internal/pkg/validation"
)

// CSVHolding is one validated row of a portfolio import file.
type CSVHolding struct {
	Symbol     string
	Shares     float64
	Allocation float64
}

// CSVParseResult carries rows that validated plus per-row errors and warnings.
type CSVParseResult struct {
	Holdings []CSVHolding
	Errors   []string
	Warnings []string
}

var csvRequiredColumns = []string{"symbol", "shares", "allocation"}

// ParseHoldingsCSV parses an import file with header Symbol,Shares,Allocation
// (case-insensitive, extra columns ignored). Rows that fail validation are
// collected as errors without stopping the rest of the file.
func ParseHoldingsCSV(r io.Reader) CSVParseResult {
	var result CSVParseResult

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		result.Errors = append(result.Errors, "CSV file appears to be empty")
		return result
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, required := range csvRequiredColumns {
		if _, ok := columns[required]; !ok {
			missing = append(missing, strings.ToUpper(required[:1])+required[1:])
		}
	}
	if len(missing) > 0 {
		result.Errors = append(result.Errors, "Missing required columns: "+strings.Join(missing, ", "))
		return result
	}

	seen := make(map[string]bool)
	totalAllocation := 0.0
	rowNumber := 1

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNumber++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNumber, err))
			continue
		}
		if isBlankRow(row) {
			continue
		}

		symbol := validation.NormalizeSymbol(field(row, columns["symbol"]))
		if symbol == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d, Symbol: symbol cannot be empty", rowNumber))
			continue
		}
		if !validation.IsValidSymbol(symbol) {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d, Symbol: invalid symbol %q", rowNumber, symbol))
			continue
		}

		shares, err := strconv.ParseFloat(field(row, columns["shares"]), 64)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d, Shares: invalid shares value %q", rowNumber, field(row, columns["shares"])))
			continue
		}
		if !validation.IsValidShares(shares) {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d, Shares: shares must be non-negative", rowNumber))
			continue
		}

		allocation, err := strconv.ParseFloat(field(row, columns["allocation"]), 64)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d, Allocation: invalid allocation value %q", rowNumber, field(row, columns["allocation"])))
			continue
		}
		if !validation.IsValidTargetAllocation(allocation) {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d, Allocation: allocation must be between 0.01 and 100", rowNumber))
			continue
		}

		if seen[symbol] {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: duplicate symbol %s", rowNumber, symbol))
			continue
		}
		seen[symbol] = true
		totalAllocation += allocation
		result.Holdings = append(result.Holdings, CSVHolding{Symbol: symbol, Shares: shares, Allocation: allocation})
	}

	if len(result.Holdings) > 0 {
		switch {
		case totalAllocation > 100.01:
			result.Errors = append(result.Errors, fmt.Sprintf("Total allocation is %.2f%%, which exceeds 100%%", totalAllocation))
		case totalAllocation < 99.99:
			result.Warnings = append(result.Warnings, fmt.Sprintf("Total allocation is %.2f%%, which is less than 100%%", totalAllocation))
		}
	} else if len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "No valid holding data found in CSV file")
	}

	return result
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
