package signing

import "testing"

func TestRoomTopicNameIsNamespaced(t *testing.T) {
	got := roomTopicName("abc-123")
	want := "party-signing/abc-123"
	if got != want {
		t.Fatalf("roomTopicName: got %q, want %q", got, want)
	}
}
