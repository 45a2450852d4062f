package profile

// Category groups questions for scoring and commonality extraction.
type Category string

const (
	CategoryIndustry  Category = "industry"
	CategoryRole      Category = "role"
	CategoryGoals     Category = "goals"
	CategoryInterests Category = "interests"
	CategoryValues    Category = "values"
	CategoryLifestyle Category = "lifestyle"
	CategoryGeneral   Category = "general"
)

// Catalog maps question ids to their response category. Unknown questions
// fall into CategoryGeneral.
type Catalog map[QuestionID]Category

// DefaultCatalog covers the questions of the standard intake questionnaire.
var DefaultCatalog = Catalog{
	"industry":       CategoryIndustry,
	"sector":         CategoryIndustry,
	"role":           CategoryRole,
	"seniority":      CategoryRole,
	"expertise":      CategoryRole,
	"goals":          CategoryGoals,
	"looking_for":    CategoryGoals,
	"interests":      CategoryInterests,
	"hobbies":        CategoryInterests,
	"values":         CategoryValues,
	"work_values":    CategoryValues,
	"lifestyle":      CategoryLifestyle,
	"work_style":     CategoryLifestyle,
	"years_in_field": CategoryRole,
}

// CategoryOf returns the category for q.
func (c Catalog) CategoryOf(q QuestionID) Category {
	if cat, ok := c[q]; ok {
		return cat
	}
	return CategoryGeneral
}
