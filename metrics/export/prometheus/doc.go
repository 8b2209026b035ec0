// Package prometheus renders veaauth engine metrics in the Prometheus text
// exposition format. Counters are named vea_auth_*_total; login and refresh
// latency are histograms. Callers mount [Exporter.Handler] themselves; no
// global registry is touched.
package prometheus
