package models

// AlertListRequest filters the alert listing endpoint.
type AlertListRequest struct {
	SensorID   string `query:"sensor_id"`
	Severity   string `query:"severity" validate:"omitempty,oneof=INFO WARNING CRITICAL"`
	Unresolved bool   `query:"unresolved"`
	From       string `query:"from"`
	To         string `query:"to"`
	Limit      int    `query:"limit" default:"100" validate:"gte=0,lte=1000"`
}

// AcknowledgeRequest carries the operator identity for an ack.
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" validate:"required"`
}
