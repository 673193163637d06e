package prompt

import "github.com/kapu/sales-intel-go/internal/domain"

type AutofillData struct {
	URLs []string
}

type DeepReportData struct {
	Seller domain.SellerInfo
	Buyer  domain.BuyerInfo
}
