// Package metrics writes CloudWatch Embedded Metric Format (EMF) records.
//
// An EMF record is a single JSON line; when it lands in a Lambda's log
// stream CloudWatch extracts the metrics from it. No API calls are made.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"
)

// Namespace holds every metric the pipeline emits.
const Namespace = "ImageStory"

// CloudWatch units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitBytes        = "Bytes"
)

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type directive struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder collects one EMF record. Not safe for concurrent use.
type Recorder struct {
	namespace  string
	dimensions map[string]string
	metrics    []metricDef
	fields     map[string]any
	now        func() time.Time
}

// New returns a Recorder for namespace. Inside Lambda the function name is
// added as a FunctionName dimension.
func New(namespace string) *Recorder {
	r := &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		fields:     make(map[string]any),
		now:        time.Now,
	}
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		r.dimensions["FunctionName"] = fn
	}
	return r
}

// Dimension adds an indexed key.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records value under name. Recording a name twice keeps the last value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	r.metrics = slices.DeleteFunc(r.metrics, func(m metricDef) bool { return m.Name == name })
	r.metrics = append(r.metrics, metricDef{Name: name, Unit: unit})
	r.fields[name] = value
	return r
}

// Count records a count of one.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Duration records d in milliseconds.
func (r *Recorder) Duration(name string, d time.Duration) *Recorder {
	return r.Metric(name, float64(d.Microseconds())/1000, UnitMilliseconds)
}

// Property adds a field that is searchable in Logs Insights but is not a metric.
func (r *Recorder) Property(key string, value any) *Recorder {
	if _, isMetric := r.fields[key]; isMetric {
		return r
	}
	r.fields[key] = value
	return r
}

// WriteTo writes the record as one line to w. A Recorder without metrics
// writes nothing.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	if len(r.metrics) == 0 {
		return 0, nil
	}

	dimKeys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		dimKeys = append(dimKeys, k)
	}
	slices.Sort(dimKeys)

	doc := make(map[string]any, len(r.fields)+len(r.dimensions)+1)
	for k, v := range r.fields {
		doc[k] = v
	}
	for k, v := range r.dimensions {
		doc[k] = v
	}
	doc["_aws"] = directive{
		Timestamp: r.now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{dimKeys},
			Metrics:    r.metrics,
		}},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("emf: failed to marshal record: %w", err)
	}
	n, err := w.Write(append(data, '\n'))
	return int64(n), err
}
