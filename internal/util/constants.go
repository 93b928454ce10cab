package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeOctetStream = "application/octet-stream"
)

// gin 上下文键
const (
	UserContextKey = "user"
	RequestIDKey   = "requestID"
)

const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
)
