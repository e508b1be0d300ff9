package mqtt

import "testing"

func TestTopics(t *testing.T) {
	if got := OrderTopic("PATROL-01"); got != "patrol/PATROL-01/dispatch" {
		t.Fatalf("order topic %s", got)
	}
	if got := UnitAckTopic("PATROL-01"); got != "patrol/PATROL-01/ack" {
		t.Fatalf("ack topic %s", got)
	}
	if got := StatusTopic("SOS-1"); got != "sos/SOS-1/status" {
		t.Fatalf("status topic %s", got)
	}
}

func TestUnitFromTopic(t *testing.T) {
	cases := map[string]string{
		"patrol/PATROL-02/dispatch": "PATROL-02",
		"patrol/U1/ack":             "U1",
		"patrol//dispatch":          "",
		"sos/SOS-1/status":          "",
		"patrol/U1":                 "",
	}
	for topic, want := range cases {
		got, ok := UnitFromTopic(topic)
		if ok != (want != "") || got != want {
			t.Fatalf("%s: got %q ok=%v", topic, got, ok)
		}
	}
}
