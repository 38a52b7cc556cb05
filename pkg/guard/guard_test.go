package guard

import (
	"testing"

	"zapreply/pkg/inbound"
)

func proceedable() inbound.Event {
	return inbound.Event{ChatTarget: "5511999999999", Text: "hello"}
}

func TestClassifyRuleOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*inbound.Event)
		policy Policy
		want   Disposition
	}{
		{name: "proceed", mutate: func(*inbound.Event) {}, want: Proceed},
		{name: "self sent beats everything", mutate: func(e *inbound.Event) {
			e.Flags = inbound.Flags{FromMe: true, IsStatusEvent: true, IsGroup: true}
			e.ChatTarget, e.Text = "", ""
		}, want: IgnoredSelfSent},
		{name: "status beats group", mutate: func(e *inbound.Event) {
			e.Flags = inbound.Flags{IsStatusEvent: true, IsGroup: true}
		}, want: IgnoredStatusEvent},
		{name: "group filtered", mutate: func(e *inbound.Event) { e.Flags.IsGroup = true }, want: IgnoredGroup},
		{name: "group allowed by policy", mutate: func(e *inbound.Event) { e.Flags.IsGroup = true }, policy: Policy{AllowGroups: true}, want: Proceed},
		{name: "missing target beats empty text", mutate: func(e *inbound.Event) { e.ChatTarget, e.Text = "", "" }, want: IgnoredMissingTarget},
		{name: "empty text", mutate: func(e *inbound.Event) { e.Text = "" }, want: IgnoredEmptyText},
		{name: "echo marker", mutate: func(e *inbound.Event) { e.Text = `Recebi: "oi"` }, want: IgnoredEcho},
		{name: "echo marker upper case", mutate: func(e *inbound.Event) { e.Text = "RECEBI: qualquer coisa" }, want: IgnoredEcho},
		{name: "custom marker", mutate: func(e *inbound.Event) { e.Text = "Received: hello" }, policy: Policy{EchoMarker: "received:"}, want: IgnoredEcho},
		{name: "marker mid text", mutate: func(e *inbound.Event) { e.Text = "eu recebi: nada" }, want: Proceed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			event := proceedable()
			tt.mutate(&event)
			if got := Classify(event, tt.policy); got != tt.want {
				t.Fatalf("Classify(%+v) = %q, want %q", event, got, tt.want)
			}
		})
	}
}

func TestClassifyFromMeAlwaysSelfSent(t *testing.T) {
	t.Parallel()

	texts := []string{"", "hello", "recebi: loop"}
	targets := []string{"", "5511"}
	for _, text := range texts {
		for _, target := range targets {
			for _, group := range []bool{false, true} {
				event := inbound.Event{ChatTarget: target, Text: text, Flags: inbound.Flags{FromMe: true, IsGroup: group}}
				if got := Classify(event, DefaultPolicy()); got != IgnoredSelfSent {
					t.Fatalf("Classify(%+v) = %q, want %q", event, got, IgnoredSelfSent)
				}
			}
		}
	}
}

func TestClassifyIsDeterministicOverNormalize(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`{"text":{"message":"hello"},"phone":"5511999999999"}`,
		`{"isStatusReply":true,"phone":"551199999"}`,
		`{"phone":"5511","text":{"message":""}}`,
		`not json`,
	}

	for _, body := range bodies {
		first := Classify(inbound.Normalize([]byte(body), inbound.Options{}), DefaultPolicy())
		second := Classify(inbound.Normalize([]byte(body), inbound.Options{}), DefaultPolicy())
		if first != second {
			t.Fatalf("Classify not idempotent for %s: %q then %q", body, first, second)
		}
	}
}

func TestWebhookPayloadDispositions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want Disposition
	}{
		{body: `{"text":{"message":"hello"},"phone":"5511999999999"}`, want: Proceed},
		{body: `{"isStatusReply":true,"phone":"551199999"}`, want: IgnoredStatusEvent},
		{body: `{"phone":"5511999999999","text":""}`, want: IgnoredEmptyText},
		{body: `{"phone":"5511999999999"}`, want: IgnoredEmptyText},
	}

	for _, tt := range tests {
		got := Classify(inbound.Normalize([]byte(tt.body), inbound.Options{}), DefaultPolicy())
		if got != tt.want {
			t.Fatalf("Classify(Normalize(%s)) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestDispositionReason(t *testing.T) {
	t.Parallel()

	if Proceed.Ignored() {
		t.Fatal("Proceed.Ignored() = true, want false")
	}
	if Proceed.Reason() != "" {
		t.Fatalf("Proceed.Reason() = %q, want empty", Proceed.Reason())
	}

	for _, d := range []Disposition{IgnoredSelfSent, IgnoredStatusEvent, IgnoredGroup, IgnoredMissingTarget, IgnoredEmptyText, IgnoredEcho} {
		if !d.Ignored() {
			t.Fatalf("%q.Ignored() = false, want true", d)
		}
		if d.Reason() == "" {
			t.Fatalf("%q.Reason() is empty", d)
		}
	}
}

func TestHasEchoMarkerBlankMarkerUsesDefault(t *testing.T) {
	t.Parallel()

	if !HasEchoMarker("  Recebi: x", "  ") {
		t.Fatal("expected default marker to match when configured marker is blank")
	}
}
