package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"makecoffee/internal/catalog"
	"makecoffee/internal/storage"
)

func newImportIngredientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-ingredients <csv>",
		Short: "Create or update catalog ingredients from a CSV file",
		Long: `Reads a CSV with the header ingredient_name,description,price,unit.
Rows are matched to existing ingredients by case-insensitive name; matches
have their price, unit and description refreshed and are restored if deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readCSV(args[0])
			if err != nil {
				return fmt.Errorf("read csv: %w", err)
			}

			database, err := openDatabaseFunc(cmd.Context())
			if err != nil {
				return err
			}

			service := catalog.NewService(database, storage.Disabled{}, 0)
			result, err := service.ImportRows(cmd.Context(), rows)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d ingredients (%d created, %d updated)\n",
				result.Created+result.Updated, result.Created, result.Updated)
			return nil
		},
	}
}

func readCSV(path string) ([]catalog.ImportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("csv is empty")
	}

	columns := make(map[string]int, len(records[0]))
	for idx, name := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	for _, required := range []string{"ingredient_name", "price", "unit"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	rows := make([]catalog.ImportRow, 0, len(records)-1)
	for line, record := range records[1:] {
		if len(record) == 0 || field(record, "ingredient_name") == "" {
			continue
		}
		price, err := decimal.NewFromString(field(record, "price"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q", line+2, field(record, "price"))
		}
		rows = append(rows, catalog.ImportRow{
			Name:        field(record, "ingredient_name"),
			Description: field(record, "description"),
			Price:       price,
			Unit:        field(record, "unit"),
		})
	}
	return rows, nil
}
