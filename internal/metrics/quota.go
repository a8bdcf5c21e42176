package metrics

import "strconv"

// QuotaAllowed records an allowed quota decision. warning marks decisions
// made at or above the warning threshold.
func QuotaAllowed(action string, warning bool) {
	if warning {
		QuotaDecisionsTotal.WithLabelValues(action, "warning").Inc()
		return
	}
	QuotaDecisionsTotal.WithLabelValues(action, "allowed").Inc()
}

// QuotaDenied records a denied quota decision.
func QuotaDenied(action string) {
	QuotaDecisionsTotal.WithLabelValues(action, "denied").Inc()
}

// QuotaReset records a ledger cycle reset.
func QuotaReset() {
	QuotaResetsTotal.Inc()
}

// RelayConnected should be called once a connection has authenticated.
func RelayConnected() {
	RelayConnections.Inc()
}

// RelayDisconnected should be called when an authenticated connection closes.
func RelayDisconnected() {
	RelayConnections.Dec()
}

// RelayEvent records the outcome of handling an inbound relay event.
func RelayEvent(event, outcome string) {
	RelayEventsTotal.WithLabelValues(event, outcome).Inc()
}

// MessageSent records a persisted chat message.
func MessageSent(messageType string) {
	MessagesSent.WithLabelValues(messageType).Inc()
}

// AttachmentStored records a stored attachment of kind.
func AttachmentStored(kind string, thumbnail bool) {
	AttachmentsStored.WithLabelValues(kind, strconv.FormatBool(thumbnail)).Inc()
}
