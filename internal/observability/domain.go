package observability

// ObserveDecode mencatat hasil decode barcode. Format kosong dicatat sebagai "none".
func (m *Metrics) ObserveDecode(outcome, format string) {
	if m == nil {
		return
	}
	if format == "" {
		format = "none"
	}
	m.decodes.WithLabelValues(outcome, format).Inc()
}

// ObserveImport mencatat outcome satu item impor.
func (m *Metrics) ObserveImport(outcome string) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(outcome).Inc()
}

// ObserveRefresh mencatat outcome refresh token.
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}
