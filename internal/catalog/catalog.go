// Package catalog loads the vacancy catalog from a CSV file. The catalog is
// read once at startup and never mutated afterwards, so it is safe for
// concurrent use by every conversation.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/mapstructure"
)

// Load reads the catalog from the CSV file at path. Expected columns are
// title, description and one salary_<Country> column per supported country.
// A missing file is not an error: the built-in fallback catalog is returned,
// so the bot can run without any data file at all.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Builtin(), nil
		}
		return nil, fmt.Errorf("opening catalog %q: %w", path, err)
	}
	defer file.Close()

	c, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog CSV content. The first row is the header; the first
// salary column determines the default country for salary fallbacks.
func Parse(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns := make(map[int]string, len(header))
	defaultCountry := ""
	hasTitle := false
	for i, name := range header {
		columns[i] = name
		if name == "title" {
			hasTitle = true
		}
		if country, ok := countryFromColumn(name); ok && defaultCountry == "" {
			defaultCountry = country
		}
	}

	if !hasTitle {
		return nil, fmt.Errorf("catalog header has no title column: %v", header)
	}

	c := &Catalog{DefaultCountry: defaultCountry}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		row := make(map[string]string, len(record))
		for i, value := range record {
			if name, ok := columns[i]; ok {
				row[name] = value
			}
		}

		vacancy, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, vacancy)
	}

	return c, nil
}

func decodeRow(row map[string]string) (*Vacancy, error) {
	var vacancy Vacancy
	if err := mapstructure.Decode(row, &vacancy); err != nil {
		return nil, fmt.Errorf("decoding catalog row: %w", err)
	}

	vacancy.Salaries = make(map[string]string)
	for column, value := range row {
		if country, ok := countryFromColumn(column); ok {
			vacancy.Salaries[country] = value
		}
	}

	return &vacancy, nil
}

// Builtin returns the embedded construction-trade catalog used when no CSV
// file is configured.
func Builtin() *Catalog {
	return &Catalog{
		DefaultCountry: "Россия",
		Items: []*Vacancy{
			{
				Title:       "Сварщик",
				Description: "Сварка металлоконструкций, опыт от 1 года",
				Salaries: map[string]string{
					"Россия":     "70-90 тыс.",
					"Узбекистан": "60-80 тыс.",
					"Казахстан":  "65-85 тыс.",
				},
			},
			{
				Title:       "Водитель",
				Description: "Кат. С, перевозка грузов, знание ПДД",
				Salaries: map[string]string{
					"Россия":     "65-85 тыс.",
					"Узбекистан": "55-75 тыс.",
					"Казахстан":  "60-80 тыс.",
				},
			},
			{
				Title:       "Строитель",
				Description: "Общестроительные работы, опыт от 2 лет",
				Salaries: map[string]string{
					"Россия":     "60-80 тыс.",
					"Узбекистан": "50-70 тыс.",
					"Казахстан":  "55-75 тыс.",
				},
			},
			{
				Title:       "Электрик",
				Description: "Монтаж электрических сетей, опыт от 3 лет",
				Salaries: map[string]string{
					"Россия":     "75-95 тыс.",
					"Узбекистан": "65-85 тыс.",
					"Казахстан":  "70-90 тыс.",
				},
			},
		},
	}
}
