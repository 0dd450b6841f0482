package models

import "time"

// TestCategory enumerates the supported standardized tests.
type TestCategory string

const (
	TestCategoryItaL2 TestCategory = "ITA_L2"
	TestCategoryTOLC  TestCategory = "TOLC"
	TestCategoryCENTS TestCategory = "CENTS"
	TestCategoryCLA   TestCategory = "CLA"
)

// TOLCSubtypes lists the accepted TOLC variants.
var TOLCSubtypes = []string{"I", "E", "F", "SU", "B", "S"}

// Valid reports whether c is a known category.
func (c TestCategory) Valid() bool {
	switch c {
	case TestCategoryItaL2, TestCategoryTOLC, TestCategoryCENTS, TestCategoryCLA:
		return true
	}
	return false
}

// RequiresSubtype reports whether a selection of c must carry a subtype.
func (c TestCategory) RequiresSubtype() bool {
	return c == TestCategoryTOLC
}

// StudentTestSelection records which test a booking prepares for. Immutable.
type StudentTestSelection struct {
	ID           string       `db:"id" json:"id"`
	StudentID    string       `db:"student_id" json:"studentId"`
	TestCategory TestCategory `db:"test_category" json:"testCategory"`
	TestSubtype  *string      `db:"test_subtype" json:"testSubtype,omitempty"`
	TestDateTime time.Time    `db:"test_date_time" json:"testDateTime"`
	Notes        *string      `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
}

// TestCatalogEntry is one row of the test catalogue.
type TestCatalogEntry struct {
	ID          string       `db:"id" json:"id"`
	Category    TestCategory `db:"category" json:"category"`
	Subtype     *string      `db:"subtype" json:"subtype,omitempty"`
	DisplayName string       `db:"display_name" json:"displayName"`
}
