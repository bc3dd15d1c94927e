package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseKind_Unknown(t *testing.T) {
	if _, err := ParseKind("bogus"); err == nil {
		t.Error("expected error for unknown kind")
	}
	k, err := ParseKind("human_intervention_needed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != KindHumanIntervention {
		t.Errorf("expected KindHumanIntervention, got %s", k)
	}
}

func TestMessage_RequestHelpers(t *testing.T) {
	if !NewRequest("client", RequestStopAgent).IsStop() {
		t.Error("stop_agent request should be a stop")
	}
	if NewText("client", RequestStopAgent).IsStop() {
		t.Error("text message must not be treated as stop")
	}
	if !NewRequest("CodeAgent", "[BLOCK1]need_permission").IsPermissionRequest() {
		t.Error("expected permission request")
	}
	approved, ok := NewRequest("client", RequestDeny).IsApproval()
	if !ok || approved {
		t.Errorf("expected deny verdict, got approved=%v ok=%v", approved, ok)
	}
}

func TestMessage_DecodesHumanResponse(t *testing.T) {
	data := []byte(`{"sender_name":"SmartRouter","type":"human_response","content":{"action":"retry","force_agent":"code"}}`)
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, ok := m.Content.(*HumanResponse)
	if !ok {
		t.Fatalf("expected *HumanResponse content, got %T", m.Content)
	}
	if resp.Action != ActionRetry || resp.ForceAgent != "code" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestMessage_EncodesWireShape(t *testing.T) {
	data, err := json.Marshal(NewStatus("CodeAgent", "[STOP]"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"sender_name":"CodeAgent","type":"status","content":"[STOP]"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
