package domain

// BuyerInfo describes the prospect. Same lifecycle as SellerInfo.
type BuyerInfo struct {
	Name        string `json:"name"`
	JobTitle    string `json:"jobTitle"`
	Company     string `json:"company"`
	Industry    string `json:"industry"`
	PainPoints  string `json:"painPoints"`
	LinkedinURL string `json:"linkedinUrl"`
	Website     string `json:"website"`
}

func (b BuyerInfo) Fields() []Field {
	return []Field{
		{"name", b.Name},
		{"jobTitle", b.JobTitle},
		{"company", b.Company},
		{"industry", b.Industry},
		{"painPoints", b.PainPoints},
		{"linkedinUrl", b.LinkedinURL},
		{"website", b.Website},
	}
}

func (b BuyerInfo) IsEmpty() bool {
	return allBlank(b.Fields())
}

func MergeBuyer(base, patch BuyerInfo) BuyerInfo {
	fill(&base.Name, patch.Name)
	fill(&base.JobTitle, patch.JobTitle)
	fill(&base.Company, patch.Company)
	fill(&base.Industry, patch.Industry)
	fill(&base.PainPoints, patch.PainPoints)
	fill(&base.LinkedinURL, patch.LinkedinURL)
	fill(&base.Website, patch.Website)
	return base
}
