package domain

// AutofillResult is the structured answer of the autofill extraction. Keys the
// model leaves out decode to empty strings and a zero confidence.
type AutofillResult struct {
	Seller     SellerInfo `json:"seller"`
	Buyer      BuyerInfo  `json:"buyer"`
	Confidence float64    `json:"confidence"`
}

// LinkPreview is the page metadata fetched for an autofill URL.
type LinkPreview struct {
	URL         string `json:"url"`
	FinalURL    string `json:"finalUrl,omitempty"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	Error       string `json:"error,omitempty"`
}
