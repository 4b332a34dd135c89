package constants

const (
	APIFieldRequestID = "request_id"
)

const (
	ContentTypePNG = "image/png"
)

const (
	HeaderAccept        = "Accept"
	HeaderAuthorization = "Authorization"
	HeaderContentDigest = "Content-Digest"
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
	HeaderOrigin        = "Origin"
	HeaderXRequestID    = "X-Request-ID"
)
