package report

import (
	"testing"
)

func TestPriorityOrder(t *testing.T) {
	ordered := []Kind{KindBounce, KindComplaint, KindDelivery, KindDeliveryDelay, KindSend, KindOpen, KindUnknown}
	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i].Priority() <= ordered[i+1].Priority() {
			t.Errorf("%s priority %d not greater than %s priority %d",
				ordered[i], ordered[i].Priority(), ordered[i+1], ordered[i+1].Priority())
		}
	}

	if KindOpen.Priority() != 0 || KindClick.Priority() != 0 || KindReject.Priority() != 0 {
		t.Error("Open, Click and Reject must share priority 0")
	}
	if KindUnknown.Priority() != -1 {
		t.Errorf("Unknown priority = %d, want -1", KindUnknown.Priority())
	}
}

func TestBestPicksMaxPriority(t *testing.T) {
	events := []Event{
		{Kind: KindSend, MessageID: "m1"},
		{Kind: KindBounce, MessageID: "m2", Diagnostic: "550"},
		{Kind: KindDelivery, MessageID: "m3"},
	}
	if got := Best(events); got.Kind != KindBounce {
		t.Errorf("Best() = %s, want Bounce", got.Kind)
	}
}

func TestBestTieIsDeterministic(t *testing.T) {
	a := Event{Kind: KindOpen, MessageID: "m-open"}
	b := Event{Kind: KindClick, MessageID: "m-click"}

	forward := Best([]Event{a, b})
	backward := Best([]Event{b, a})

	// Same-priority ties resolve to the last encountered event, so either
	// order yields a deterministic result of equal priority.
	if forward.Kind.Priority() != backward.Kind.Priority() {
		t.Errorf("tie resolution changed priority: %s vs %s", forward.Kind, backward.Kind)
	}
	if forward.MessageID != "m-click" {
		t.Errorf("forward tie = %s, want last event m-click", forward.MessageID)
	}
	if backward.MessageID != "m-open" {
		t.Errorf("backward tie = %s, want last event m-open", backward.MessageID)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantOK   bool
		wantKind Kind
		wantDiag string
		wantAddr []string
	}{
		{
			name:     "bounce with diagnostic",
			line:     `{"eventType":"Bounce","mail":{"destination":["A@X.com"],"messageId":"m1"},"bounce":{"diagnosticCode":"550 user unknown"}}`,
			wantOK:   true,
			wantKind: KindBounce,
			wantDiag: "550 user unknown",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "bounce without diagnostic",
			line:     `{"eventType":"Bounce","mail":{"destination":["a@x.com"],"messageId":"m1"}}`,
			wantOK:   true,
			wantKind: KindBounce,
			wantDiag: "Unknown bounce reason",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "complaint",
			line:     `{"eventType":"Complaint","mail":{"destination":["a@x.com"],"messageId":"m1"},"complaint":{"complaintFeedbackType":"abuse"}}`,
			wantOK:   true,
			wantKind: KindComplaint,
			wantDiag: "abuse",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "delivery delay first recipient diagnostic",
			line:     `{"eventType":"DeliveryDelay","mail":{"destination":["a@x.com"],"messageId":"m1"},"deliveryDelay":{"delayedRecipients":[{"diagnosticCode":"421 try later"}]}}`,
			wantOK:   true,
			wantKind: KindDeliveryDelay,
			wantDiag: "421 try later",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "delivery delay no recipients",
			line:     `{"eventType":"DeliveryDelay","mail":{"destination":["a@x.com"],"messageId":"m1"},"deliveryDelay":{}}`,
			wantOK:   true,
			wantKind: KindDeliveryDelay,
			wantDiag: "Unknown delay reason",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "reject",
			line:     `{"eventType":"Reject","mail":{"destination":["a@x.com"],"messageId":"m1"}}`,
			wantOK:   true,
			wantKind: KindReject,
			wantDiag: "Unknown reason",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "delivery has empty diagnostic",
			line:     `{"eventType":"Delivery","mail":{"destination":["a@x.com"],"messageId":"m1"}}`,
			wantOK:   true,
			wantKind: KindDelivery,
			wantDiag: "",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "unrecognized type is Unknown",
			line:     `{"eventType":"HardBounce","mail":{"destination":["a@x.com"],"messageId":"m1"}}`,
			wantOK:   true,
			wantKind: KindUnknown,
			wantDiag: "",
			wantAddr: []string{"a@x.com"},
		},
		{
			name:     "multiple destinations each kept",
			line:     `{"eventType":"Send","mail":{"destination":[" A@x.com ","b@x.com"],"messageId":"m1"}}`,
			wantOK:   true,
			wantKind: KindSend,
			wantAddr: []string{"a@x.com", "b@x.com"},
		},
		{name: "malformed json", line: `{"eventType":`, wantOK: false},
		{name: "missing destination", line: `{"eventType":"Send","mail":{"messageId":"m1"}}`, wantOK: false},
		{name: "missing message id", line: `{"eventType":"Send","mail":{"destination":["a@x.com"]}}`, wantOK: false},
		{name: "blank destinations only", line: `{"eventType":"Send","mail":{"destination":["  "],"messageId":"m1"}}`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addrs, ev, ok := ParseLine([]byte(tt.line))
			if ok != tt.wantOK {
				t.Fatalf("ParseLine() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ev.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ev.Kind, tt.wantKind)
			}
			if ev.Diagnostic != tt.wantDiag {
				t.Errorf("Diagnostic = %q, want %q", ev.Diagnostic, tt.wantDiag)
			}
			if len(addrs) != len(tt.wantAddr) {
				t.Fatalf("addrs = %v, want %v", addrs, tt.wantAddr)
			}
			for i := range addrs {
				if addrs[i] != tt.wantAddr[i] {
					t.Errorf("addrs[%d] = %q, want %q", i, addrs[i], tt.wantAddr[i])
				}
			}
		})
	}
}
