// Package report reconciles provider delivery events against a recipient
// list and produces a per-recipient status report.
package report

import (
	"encoding/json"
	"strings"
)

// Kind is the delivery event vocabulary.
type Kind string

const (
	KindSend          Kind = "Send"
	KindDelivery      Kind = "Delivery"
	KindBounce        Kind = "Bounce"
	KindComplaint     Kind = "Complaint"
	KindDeliveryDelay Kind = "DeliveryDelay"
	KindReject        Kind = "Reject"
	KindOpen          Kind = "Open"
	KindClick         Kind = "Click"
	KindUnknown       Kind = "Unknown"
)

// Priority ranks kinds for the best-status-per-recipient reduction. Higher
// wins; Bounce outranks everything so hard failures are never masked by a
// later Open.
func (k Kind) Priority() int {
	switch k {
	case KindBounce:
		return 5
	case KindComplaint:
		return 4
	case KindDelivery:
		return 3
	case KindDeliveryDelay:
		return 2
	case KindSend:
		return 1
	case KindOpen, KindClick, KindReject:
		return 0
	default:
		return -1
	}
}

func classify(eventType string) Kind {
	switch Kind(eventType) {
	case KindSend, KindDelivery, KindBounce, KindComplaint,
		KindDeliveryDelay, KindReject, KindOpen, KindClick:
		return Kind(eventType)
	default:
		return KindUnknown
	}
}

// Event is one delivery event attributed to a single recipient address.
type Event struct {
	Kind       Kind
	MessageID  string
	Diagnostic string
}

// Best reduces an event list to the single representative event: maximum
// priority, ties resolved to the last encountered event. The tie-break is a
// documented policy, not an accident of map order.
func Best(events []Event) Event {
	best := events[0]
	for _, e := range events[1:] {
		if e.Kind.Priority() >= best.Kind.Priority() {
			best = e
		}
	}
	return best
}

// record is the wire shape of one SES event line. Only the fields the
// reconciliation needs are mapped.
type record struct {
	EventType string `json:"eventType"`
	Mail      struct {
		Destination []string `json:"destination"`
		MessageID   string   `json:"messageId"`
	} `json:"mail"`
	Bounce struct {
		DiagnosticCode string `json:"diagnosticCode"`
	} `json:"bounce"`
	Complaint struct {
		ComplaintFeedbackType string `json:"complaintFeedbackType"`
	} `json:"complaint"`
	DeliveryDelay struct {
		DelayedRecipients []struct {
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"delayedRecipients"`
	} `json:"deliveryDelay"`
}

// ParseLine parses one log line into an event plus the destination addresses
// it applies to. Returns ok=false for malformed lines and for records missing
// a destination list or message id; callers skip those and continue.
func ParseLine(line []byte) (addrs []string, ev Event, ok bool) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, Event{}, false
	}
	if len(rec.Mail.Destination) == 0 || rec.Mail.MessageID == "" {
		return nil, Event{}, false
	}

	for _, d := range rec.Mail.Destination {
		addr := strings.ToLower(strings.TrimSpace(d))
		if addr != "" {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, Event{}, false
	}

	kind := classify(rec.EventType)
	ev = Event{
		Kind:       kind,
		MessageID:  rec.Mail.MessageID,
		Diagnostic: diagnostic(kind, &rec),
	}
	return addrs, ev, true
}

// diagnostic extracts the kind-specific error message; kinds without an
// extraction rule get an empty diagnostic.
func diagnostic(kind Kind, rec *record) string {
	switch kind {
	case KindBounce:
		if rec.Bounce.DiagnosticCode != "" {
			return rec.Bounce.DiagnosticCode
		}
		return "Unknown bounce reason"
	case KindComplaint:
		if rec.Complaint.ComplaintFeedbackType != "" {
			return rec.Complaint.ComplaintFeedbackType
		}
		return "Unknown complaint"
	case KindDeliveryDelay:
		for _, d := range rec.DeliveryDelay.DelayedRecipients {
			if d.DiagnosticCode != "" {
				return d.DiagnosticCode
			}
		}
		return "Unknown delay reason"
	case KindReject:
		if rec.Bounce.DiagnosticCode != "" {
			return rec.Bounce.DiagnosticCode
		}
		return "Unknown reason"
	default:
		return ""
	}
}
