package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/linuxboot/uefisettings/pkg/dispatch"
)

type metricCollector struct {
	m []prometheus.Metric
}

func (mc *metricCollector) Collect(c chan<- prometheus.Metric) {
	for _, m := range mc.m {
		c <- m
	}
}

func (mc *metricCollector) Describe(c chan<- *prometheus.Desc) {}

func gatherAndWrite(w io.Writer, mc *metricCollector) error {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(mc); err != nil {
		return err
	}
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// emitIdentifyMetrics reports backend presence plus, for every canonical
// name the spellings table knows about and that resolves to a boolean
// Enabled/Disabled answer, a numeric gauge of its current value. Mirrors
// tcgdiskstat's per-device info metrics, one canonical setting at a time
// instead of one drive at a time.
func emitIdentifyMetrics(w io.Writer, d *dispatch.Dispatcher, p dispatch.Presence) error {
	mPresent := prometheus.NewDesc(
		"uefisettings_backend_present",
		"Boolean describing whether a settings backend was detected on this host",
		[]string{"backend"}, nil,
	)
	mQuestion := prometheus.NewDesc(
		"uefisettings_question_value",
		"Numeric value (1=Enabled, 0=Disabled) of a known canonical setting, where applicable",
		[]string{"name", "backend"}, nil,
	)

	mc := &metricCollector{}
	mc.m = append(mc.m, prometheus.MustNewConstMetric(mPresent, prometheus.GaugeValue, boolToFloat(p.Hii), "hii"))
	mc.m = append(mc.m, prometheus.MustNewConstMetric(mPresent, prometheus.GaugeValue, boolToFloat(p.Ilo), "ilo"))

	for _, name := range d.Spellings.Names() {
		results, err := d.Get(context.Background(), name, "")
		if err != nil {
			continue
		}
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			v, ok := enabledToFloat(r.Answer)
			if !ok {
				continue
			}
			mc.m = append(mc.m, prometheus.MustNewConstMetric(mQuestion, prometheus.GaugeValue, v, name, string(r.Backend)))
		}
	}

	return gatherAndWrite(w, mc)
}

// emitAttributeMetrics reports every iLO attribute as a Prometheus info
// metric, one label series per attribute/value pair, the same shape
// tcgdiskstat uses for tcg_storage_drive_info.
func emitAttributeMetrics(w io.Writer, attrs map[string]interface{}) error {
	mInfo := prometheus.NewDesc(
		"uefisettings_ilo_attribute_info",
		"Info metric reporting the current value of an iLO BIOS attribute",
		[]string{"name", "value"}, nil,
	)
	mc := &metricCollector{}
	for name, v := range attrs {
		mc.m = append(mc.m, prometheus.MustNewConstMetric(mInfo, prometheus.GaugeValue, 1, name, toDisplayString(v)))
	}
	return gatherAndWrite(w, mc)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func enabledToFloat(answer string) (float64, bool) {
	switch answer {
	case "Enabled":
		return 1, true
	case "Disabled":
		return 0, true
	}
	return 0, false
}

func toDisplayString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
