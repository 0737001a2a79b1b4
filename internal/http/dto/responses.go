package dto

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type DonateResponse struct {
	Tx    string `json:"tx"`
	Track string `json:"track"`
}

type DonorIntentResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	TransactionURL  string `json:"transactionUrl,omitempty"`
	Message         string `json:"message,omitempty"`
}

type XamanCreatePaymentResponse struct {
	Success   bool   `json:"success"`
	PayloadID string `json:"payloadId,omitempty"`
	QRCode    string `json:"qrCode,omitempty"`
	SignLink  string `json:"signLink,omitempty"`
	Error     string `json:"error,omitempty"`
}

type XamanPayloadStatusResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Completed bool   `json:"completed"`
	TxID      string `json:"txid,omitempty"`
}

type CharityResponse struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Wallet      string `json:"wallet"`
	Website     string `json:"website,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}
