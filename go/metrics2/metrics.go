// Package metrics2 is a thin, tag-aware layer over Prometheus metrics.
//
// Metrics are looked up by name plus an optional set of tags; asking for the
// same name and tags twice returns the same metric.
package metrics2

// Int64Metric is a gauge holding an int64.
type Int64Metric interface {
	Get() int64
	Update(v int64)
	Delete() error
}

// Float64SummaryMetric records observations into a summary.
type Float64SummaryMetric interface {
	Observe(v float64)
}

// Counter is an Int64Metric that is only ever incremented or reset.
type Counter interface {
	Get() int64
	Inc(i int64)
	Dec(i int64)
	Reset()
}

// Client creates and caches metrics.
type Client interface {
	GetInt64Metric(name string, tags ...map[string]string) Int64Metric
	GetCounter(name string, tags ...map[string]string) Counter
	GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric
}

var defaultClient Client = newPromClient()

// GetInt64Metric returns an Int64Metric from the default client.
func GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return defaultClient.GetInt64Metric(name, tags...)
}

// GetCounter returns a Counter from the default client.
func GetCounter(name string, tags ...map[string]string) Counter {
	return defaultClient.GetCounter(name, tags...)
}

// GetFloat64SummaryMetric returns a Float64SummaryMetric from the default client.
func GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	return defaultClient.GetFloat64SummaryMetric(name, tags...)
}
