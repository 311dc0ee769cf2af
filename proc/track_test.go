package proc

import "testing"

func TestParseLoopMode(t *testing.T) {
	cases := []struct {
		in    string
		want  LoopMode
		valid bool
	}{
		{"none", LoopNone, true},
		{"track", LoopTrack, true},
		{"queue", LoopQueue, true},
		{"TRACK", LoopTrack, true},
		{"Queue", LoopQueue, true},
		{"", "", false},
		{"song", "", false},
		{"all", "", false},
	}
	for _, tc := range cases {
		got, valid := ParseLoopMode(tc.in)
		if got != tc.want || valid != tc.valid {
			t.Errorf("ParseLoopMode(%q) = (%v, %v), want (%v, %v)", tc.in, got, valid, tc.want, tc.valid)
		}
	}
}

func TestNextLoopModeCycle(t *testing.T) {
	m := LoopNone
	for i, want := range []LoopMode{LoopQueue, LoopTrack, LoopNone} {
		m = NextLoopMode(m)
		if m != want {
			t.Fatalf("step %d = %v, want %v", i+1, m, want)
		}
	}
}
