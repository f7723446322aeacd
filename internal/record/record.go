package record

// Column names of the output file, in the order they are written.
const (
	DateScraped   = "date_scraped"
	Builder       = "builder"
	Brand         = "brand"
	Community     = "community"
	Address       = "address"
	City          = "city"
	State         = "state"
	Zip           = "zip"
	PlanType      = "plan_type"
	Plan          = "plan"
	Floors        = "floors"
	Bedrooms      = "bedrooms"
	FullBathrooms = "full_bathrooms"
	HalfBathrooms = "half_bathrooms"
	Garage        = "garage"
	Sqft          = "sqft"
	Price         = "price"
	HomeID        = "home_id"
	Status        = "status"
	Link          = "link"
)

// DateLayout is the layout of the date_scraped column.
const DateLayout = "2006-01-02"

// Columns is the fixed column order of every output row.
var Columns = []string{
	DateScraped, Builder, Brand, Community, Address, City,
	State, Zip, PlanType, Plan, Floors, Bedrooms,
	FullBathrooms, HalfBathrooms, Garage, Sqft, Price,
	HomeID, Status, Link,
}

// Record is one normalized listing. Every column in Columns is always
// present; fields that could not be extracted hold the empty string.
type Record map[string]string

// New returns a Record with every column set to the empty string.
func New() Record {
	r := make(Record, len(Columns))
	for _, c := range Columns {
		r[c] = ""
	}
	return r
}

// Set assigns a column value. Unknown columns are ignored so the row shape
// never changes.
func (r Record) Set(column, value string) {
	if _, ok := r[column]; ok {
		r[column] = value
	}
}

// Row renders the record in the given column order.
func (r Record) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = r[c]
	}
	return row
}
