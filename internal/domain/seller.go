package domain

import "strings"

// SellerInfo describes the selling party. Every field is free text and the
// zero value is the empty profile.
type SellerInfo struct {
	Name         string `json:"name"`
	JobProfile   string `json:"jobProfile"`
	Company      string `json:"company"`
	Website      string `json:"website"`
	Industry     string `json:"industry"`
	LinkedinURL  string `json:"linkedinUrl"`
	ProductFocus string `json:"productFocus"`
	ValueProp    string `json:"valueProp"`
}

// Field is one named profile value, keyed by its JSON name.
type Field struct {
	Name  string
	Value string
}

func (s SellerInfo) Fields() []Field {
	return []Field{
		{"name", s.Name},
		{"jobProfile", s.JobProfile},
		{"company", s.Company},
		{"website", s.Website},
		{"industry", s.Industry},
		{"linkedinUrl", s.LinkedinURL},
		{"productFocus", s.ProductFocus},
		{"valueProp", s.ValueProp},
	}
}

// IsEmpty reports whether every field is blank after trimming whitespace.
func (s SellerInfo) IsEmpty() bool {
	return allBlank(s.Fields())
}

// MergeSeller fills the blank fields of base from patch. Fields already set on
// base are kept.
func MergeSeller(base, patch SellerInfo) SellerInfo {
	fill(&base.Name, patch.Name)
	fill(&base.JobProfile, patch.JobProfile)
	fill(&base.Company, patch.Company)
	fill(&base.Website, patch.Website)
	fill(&base.Industry, patch.Industry)
	fill(&base.LinkedinURL, patch.LinkedinURL)
	fill(&base.ProductFocus, patch.ProductFocus)
	fill(&base.ValueProp, patch.ValueProp)
	return base
}

func allBlank(fields []Field) bool {
	for _, f := range fields {
		if strings.TrimSpace(f.Value) != "" {
			return false
		}
	}
	return true
}

func fill(dst *string, value string) {
	if strings.TrimSpace(*dst) == "" && strings.TrimSpace(value) != "" {
		*dst = value
	}
}
