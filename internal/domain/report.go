package domain

import "time"

// Report is an archived deep report. Markdown holds the model output verbatim.
type Report struct {
	ID        string     `json:"id"`
	Seller    SellerInfo `json:"seller"`
	Buyer     BuyerInfo  `json:"buyer"`
	Markdown  string     `json:"markdown"`
	Provider  string     `json:"provider,omitempty"`
	Model     string     `json:"model,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
