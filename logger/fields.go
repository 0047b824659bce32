package logger

// Standard field key constants for structured logging.
const (
	FieldComponent      = "component"
	FieldSubscriptionID = "subscription_id"
	FieldOperator       = "operator"
	FieldSignal         = "signal"
	FieldValue          = "value"
	FieldDemand         = "demand"
	FieldScheduler      = "scheduler"
	FieldWorker         = "worker"
	FieldQueueDepth     = "queue_depth"
	FieldError          = "error"
	FieldDuration       = "duration_ms"
)

// Signal names used with FieldSignal.
const (
	SignalSubscribe = "onSubscribe"
	SignalRequest   = "request"
	SignalNext      = "onNext"
	SignalError     = "onError"
	SignalComplete  = "onComplete"
	SignalCancel    = "cancel"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	logger.Debug("signal", logger.Fields(logger.FieldSignal, "onNext", logger.FieldValue, 42))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// SignalFields creates fields for a single stream signal.
func SignalFields(subscriptionID, signal string) map[string]interface{} {
	return map[string]interface{}{
		FieldSubscriptionID: subscriptionID,
		FieldSignal:         signal,
	}
}

// MergeWithError adds an error field to an existing map.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldError] = err.Error()
	return fields
}
