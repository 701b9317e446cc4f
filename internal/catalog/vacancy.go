package catalog

import "strings"

// Vacancy is a single posting from the catalog. Values are immutable after
// load; the position inside the catalog is the vacancy identity.
type Vacancy struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	// Salaries maps a country label to a human-readable pay range, keyed
	// exactly as the salary_<Country> column suffix.
	Salaries map[string]string `mapstructure:"-"`
}

// SalaryFor returns the pay range for the given country. When the vacancy has
// no entry for that country the fallback country's entry is returned instead.
func (v *Vacancy) SalaryFor(country, fallback string) string {
	if s, ok := v.Salaries[country]; ok {
		return s
	}
	return v.Salaries[fallback]
}

// Catalog is an ordered, read-only collection of vacancies.
type Catalog struct {
	Items []*Vacancy

	// DefaultCountry is used for salary lookups when a vacancy carries no
	// entry for the requested country.
	DefaultCountry string
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Descriptions returns every vacancy description in catalog order, ready for
// one batched embedding call.
func (c *Catalog) Descriptions() []string {
	descriptions := make([]string, 0, c.Len())
	for _, v := range c.Items {
		descriptions = append(descriptions, v.Description)
	}
	return descriptions
}

// Countries returns the set of country labels present in salary columns
// across the catalog. Order is not significant.
func (c *Catalog) Countries() []string {
	seen := make(map[string]struct{})
	countries := make([]string, 0)
	for _, v := range c.Items {
		for country := range v.Salaries {
			if _, ok := seen[country]; ok {
				continue
			}
			seen[country] = struct{}{}
			countries = append(countries, country)
		}
	}
	return countries
}

const salaryColumnPrefix = "salary_"

// countryFromColumn extracts the country label from a salary_<Country> column
// name. The suffix match is case-sensitive on purpose: the label used in
// conversation must be byte-identical to the column suffix.
func countryFromColumn(name string) (string, bool) {
	if !strings.HasPrefix(name, salaryColumnPrefix) {
		return "", false
	}
	country := name[len(salaryColumnPrefix):]
	if country == "" {
		return "", false
	}
	return country, true
}
