package serverutils

type ResponseEnvelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) ResponseEnvelope {
	return ResponseEnvelope{
		Status:  "success",
		Message: message,
		Data:    data,
	}
}

func ErrorEnvelope(message string) ResponseEnvelope {
	return ResponseEnvelope{
		Status:  "error",
		Message: message,
	}
}
