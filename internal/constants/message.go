package constants

const (
	ContextFieldUser     = "auth_user"
	ContextFieldUsername = "username"
)

const (
	HeaderXUserID = "X-User-ID"
)

const (
	LogFieldSubscriptionID = "subscription_id"
	LogFieldAlertKind      = "alert_kind"
	LogFieldDeviceID       = "device_id"
	LogFieldAlertLogID     = "alert_log_id"
	LogFieldJobID          = "job_id"
	LogFieldUserID         = "user_id"
)
