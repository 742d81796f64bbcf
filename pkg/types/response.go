package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error body. Resolution tells the caller whether to
// retry, refetch, or change the input.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Resolution string `json:"resolution"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
