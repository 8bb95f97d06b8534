package dto

// Response is the envelope of every API reply. Exactly one of Data and
// Error is set.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta describes the page of a list reply
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Paged wraps one page of a list. Page numbers start at 1; a zero page
// size reports no pages.
func Paged(data any, total int64, page, pageSize int) Response {
	meta := &Meta{Total: total, Page: max(page, 1), PageSize: pageSize}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Response{Success: true, Data: data, Meta: meta}
}

// Failure builds an error reply. requestID is echoed so callers can quote
// it when reporting a problem.
func Failure(code, message, requestID string) Response {
	return Response{Error: &ErrorInfo{Code: code, Message: message, RequestID: requestID}}
}

// Invalid is a VALIDATION_ERROR failure listing the offending fields
func Invalid(message, requestID string, details []ValidationDetail) Response {
	resp := Failure(ErrCodeValidation, message, requestID)
	resp.Error.Details = details
	return resp
}
