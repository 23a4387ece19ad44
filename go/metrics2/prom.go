package metrics2

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.skia.org/bisection/go/sklog"
)

// Prometheus only accepts [a-zA-Z0-9_:] in metric and label names.
var invalidChar = regexp.MustCompile("[^a-zA-Z0-9_:]")

func clean(s string) string {
	return invalidChar.ReplaceAllLiteralString(s, "_")
}

// promInt64 keeps its own copy of the value since a prometheus.Gauge cannot
// be read back.
type promInt64 struct {
	i     int64
	gauge prometheus.Gauge
}

func (m *promInt64) Get() int64 {
	return atomic.LoadInt64(&m.i)
}

func (m *promInt64) Update(v int64) {
	atomic.StoreInt64(&m.i, v)
	m.gauge.Set(float64(v))
}

// Delete is a no-op; the series stays exported at its last value.
func (m *promInt64) Delete() error {
	return nil
}

type promCounter struct {
	*promInt64
}

func (c promCounter) Inc(i int64) {
	c.gauge.Set(float64(atomic.AddInt64(&c.i, i)))
}

func (c promCounter) Dec(i int64) {
	c.Inc(-i)
}

func (c promCounter) Reset() {
	c.Update(0)
}

type promSummary struct {
	prometheus.Observer
}

// series identifies one metric: a cleaned name plus sorted label names and
// their values.
type series struct {
	name   string
	labels prometheus.Labels
	keys   []string
}

func newSeries(name string, tags []map[string]string) series {
	s := series{name: clean(name), labels: prometheus.Labels{}}
	for _, t := range tags {
		for k, v := range t {
			s.labels[clean(k)] = v
		}
	}
	for k := range s.labels {
		s.keys = append(s.keys, k)
	}
	sort.Strings(s.keys)
	return s
}

// vecKey is shared by every series of a name with the same label names.
func (s series) vecKey() string {
	return s.name + "(" + strings.Join(s.keys, ",") + ")"
}

func (s series) key() string {
	parts := []string{s.name}
	for _, k := range s.keys {
		parts = append(parts, k+"="+s.labels[k])
	}
	return strings.Join(parts, ",")
}

type promClient struct {
	mutex sync.Mutex

	gaugeVecs   map[string]*prometheus.GaugeVec
	gauges      map[string]*promInt64
	summaryVecs map[string]*prometheus.SummaryVec
	summaries   map[string]*promSummary
}

func newPromClient() *promClient {
	return &promClient{
		gaugeVecs:   map[string]*prometheus.GaugeVec{},
		gauges:      map[string]*promInt64{},
		summaryVecs: map[string]*prometheus.SummaryVec{},
		summaries:   map[string]*promSummary{},
	}
}

func register(c prometheus.Collector, s series) {
	if err := prometheus.Register(c); err != nil {
		sklog.Fatalf("Failed to register %q %v: %s", s.name, s.keys, err)
	}
}

func (p *promClient) gauge(name string, tags []map[string]string) *promInt64 {
	s := newSeries(name, tags)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if m, ok := p.gauges[s.key()]; ok {
		return m
	}
	vec, ok := p.gaugeVecs[s.vecKey()]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: s.name, Help: s.name}, s.keys)
		register(vec, s)
		p.gaugeVecs[s.vecKey()] = vec
	}
	gauge, err := vec.GetMetricWith(s.labels)
	if err != nil {
		sklog.Fatalf("Failed to get gauge %q: %s", s.name, err)
	}
	m := &promInt64{gauge: gauge}
	p.gauges[s.key()] = m
	return m
}

func (p *promClient) GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return p.gauge(name, tags)
}

func (p *promClient) GetCounter(name string, tags ...map[string]string) Counter {
	return promCounter{promInt64: p.gauge(name, tags)}
}

func (p *promClient) GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric {
	s := newSeries(name, tags)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if m, ok := p.summaries[s.key()]; ok {
		return m
	}
	vec, ok := p.summaryVecs[s.vecKey()]
	if !ok {
		vec = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       s.name,
			Help:       s.name,
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, s.keys)
		register(vec, s)
		p.summaryVecs[s.vecKey()] = vec
	}
	obs, err := vec.GetMetricWith(s.labels)
	if err != nil {
		sklog.Fatalf("Failed to get summary %q: %s", s.name, err)
	}
	m := &promSummary{Observer: obs}
	p.summaries[s.key()] = m
	return m
}

var (
	_ Int64Metric          = (*promInt64)(nil)
	_ Float64SummaryMetric = (*promSummary)(nil)
	_ Counter              = promCounter{}
	_ Client               = (*promClient)(nil)
)
