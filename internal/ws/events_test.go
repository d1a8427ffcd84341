package ws

import (
	"encoding/json"
	"testing"
)

func TestEventTypeTags(t *testing.T) {
	tests := []struct {
		name  string
		event interface{}
		want  string
	}{
		{"membership", NewMembershipEvent("r", []string{"a"}), EvMembership},
		{"error", NewErrorEvent("invalid_input", "bad"), EvError},
		{"snapshot", SnapshotEvent{Type: EvSnapshot, Room: "r"}, EvSnapshot},
		{"message", MessageEvent{Type: EvMessage, Room: "r", Kind: "text"}, EvMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var tag struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(b, &tag); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tag.Type != tt.want {
				t.Errorf("type tag = %q, want %q", tag.Type, tt.want)
			}
		})
	}
}

func TestSnapshotEvent_OmitsEmptyHistory(t *testing.T) {
	b, err := json.Marshal(SnapshotEvent{Type: EvSnapshot, Room: "r", Persist: false})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["messages"]; ok {
		t.Error("snapshot for a non-persistent room should omit messages")
	}
	if _, ok := m["creator_token"]; ok {
		t.Error("snapshot for a non-creator join should omit creator_token")
	}
}
