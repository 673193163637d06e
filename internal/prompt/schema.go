package prompt

import "google.golang.org/genai"

func stringSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeString}
}

// AutofillSchema is the response schema the autofill call constrains the model to.
// Seller and buyer deliberately omit linkedinUrl.
func AutofillSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"seller": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":         stringSchema(),
					"jobProfile":   stringSchema(),
					"company":      stringSchema(),
					"industry":     stringSchema(),
					"website":      stringSchema(),
					"productFocus": stringSchema(),
					"valueProp":    stringSchema(),
				},
			},
			"buyer": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":       stringSchema(),
					"jobTitle":   stringSchema(),
					"company":    stringSchema(),
					"industry":   stringSchema(),
					"website":    stringSchema(),
					"painPoints": stringSchema(),
				},
			},
			"confidence": {Type: genai.TypeNumber},
		},
	}
}
