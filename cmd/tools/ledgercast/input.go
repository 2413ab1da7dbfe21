package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ledgercast/ledgercast/internal/services"
)

// readRequest reads date,amount rows. With transactions set, rows are raw
// transactions aggregated per month; otherwise each row is one month.
func readRequest(r io.Reader, transactions bool) (*services.PredictRequest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	req := &services.PredictRequest{}
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("line %d: expected date,amount", i+1)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(row[1]))
		if err != nil {
			if i == 0 {
				// Header row
				continue
			}
			return nil, fmt.Errorf("line %d: invalid amount %q", i+1, row[1])
		}

		date := strings.TrimSpace(row[0])
		if transactions {
			req.Transactions = append(req.Transactions, services.TransactionRecord{Date: date, Amount: amount})
		} else {
			req.Series = append(req.Series, services.SeriesPoint{Date: date, Amount: amount.InexactFloat64()})
		}
	}
	return req, nil
}

func readRequestFile(path string, transactions bool) (*services.PredictRequest, error) {
	if path == "" || path == "-" {
		return readRequest(os.Stdin, transactions)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readRequest(f, transactions)
}

// writeOutput renders v as indented JSON or as YAML. YAML goes through the
// JSON encoding so both formats share field names.
func writeOutput(w io.Writer, format string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	if strings.EqualFold(format, "yaml") {
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}

	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
