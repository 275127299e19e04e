package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// PublicEnvelope is the public API single-resource shape: {success, data}.
type PublicEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ListEnvelope is the public API list shape: {success, data, meta}.
type ListEnvelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data"`
	Meta    ListMeta `json:"meta"`
}

type ListMeta struct {
	Count      int    `json:"count"`
	Limit      int    `json:"limit,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
