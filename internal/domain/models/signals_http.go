package models

// Requests for the signal HTTP endpoints and the Kafka request topic.

type SignalRequest struct {
	Symbol  string `param:"symbol" query:"symbol" json:"symbol" validate:"required,alpha,max=10"`
	Refresh bool   `query:"refresh" json:"refresh"`
}

type SignalsRequest struct {
	Symbols string `query:"symbols" json:"symbols" validate:"omitempty,max=200"`
	Refresh bool   `query:"refresh" json:"refresh"`
}

type HistoryRequest struct {
	Symbol string `param:"symbol" query:"symbol" json:"symbol" validate:"required,alpha,max=10"`
	Days   int    `query:"days" json:"days" default:"7" validate:"gte=1,lte=365"`
}

// AnalysisRequest arrives on the request topic from chat bots and dashboards.
type AnalysisRequest struct {
	RequestID string   `json:"request_id"`
	Symbols   []string `json:"symbols" validate:"required,min=1,max=20,dive,required,alpha"`
	Refresh   bool     `json:"refresh"`
}
