package tools

// Result is what a tool returns. Failures are results too: IsError with a
// protocol error type, never a panic.
type Result struct {
	ForLLM    string `json:"for_llm"`
	IsError   bool   `json:"is_error"`
	ErrorType string `json:"error_type,omitempty"`
	Image     []byte `json:"-"` // optional attachment, e.g. a screenshot or a plot
	ImageMIME string `json:"-"`
	Err       error  `json:"-"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

// ImageResult attaches an image to a text result.
func ImageResult(forLLM string, image []byte, mime string) *Result {
	return &Result{ForLLM: forLLM, Image: image, ImageMIME: mime}
}

// WithError keeps the underlying error for logs and spans.
func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// WithType sets the error type of a failed result.
func (r *Result) WithType(errorType string) *Result {
	r.ErrorType = errorType
	return r
}
