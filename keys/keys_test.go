package keys

import "testing"

func TestBuildIsOrderIndependent(t *testing.T) {
	a := Build("attendance", map[string]string{"schedule_id": "s1", "group_id": "g1"})
	b := Build("attendance", map[string]string{"group_id": "g1", "schedule_id": "s1"})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if a != "attendance::group_id=g1::schedule_id=s1" {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestBuildDistinguishesParams(t *testing.T) {
	cases := []map[string]string{
		nil,
		{"status": ""},
		{"status": "open"},
		{"status": "open::x=y"},
		{"status": "open", "x": "y"},
	}
	seen := map[string]bool{}
	for _, p := range cases {
		k := Build("posts", p)
		if seen[k] {
			t.Fatalf("collision on %q", k)
		}
		seen[k] = true
	}
}

func TestJoin(t *testing.T) {
	if got := Join("groups", "g1", "/board/", "", "posts"); got != "/groups/g1/board/posts" {
		t.Fatalf("Join=%q", got)
	}
	if got := Join(); got != "" {
		t.Fatalf("empty Join=%q", got)
	}
}

func TestHashIsShortAndStable(t *testing.T) {
	h := Hash("/groups/g1/board")
	if len(h) != 16 || h != Hash("/groups/g1/board") || h == Hash("/groups/g2/board") {
		t.Fatalf("bad hash %q", h)
	}
}
