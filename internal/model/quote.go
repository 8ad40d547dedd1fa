package model

type Quote struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type QuoteErrorResponse struct {
	Message string `json:"message"`
}

type Summary struct {
	TotalInvested     float64 `json:"totalInvested"`
	CurrentValue      float64 `json:"currentValue"`
	ProfitLoss        float64 `json:"profitLoss"`
	ProfitLossPercent float64 `json:"profitLossPercent"`
	Holdings          int     `json:"holdings"`
	Priced            int     `json:"priced"`
}
