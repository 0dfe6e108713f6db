package duration

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		wantSec int64
		wantOK  bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"0-00:00:00", 0, false, false},
		{"1-00:00:00", 86400, true, false},
		{"0-00:00:30", 30, true, false},
		{"0-00:10:00", 600, true, false},
		{"2-03:04:05", 2*86400 + 3*3600 + 4*60 + 5, true, false},
		{"bad", 0, false, true},
		{"0-24:00:00", 0, false, true},
		{"0-00:60:00", 0, false, true},
	}
	for _, c := range cases {
		got, ok, err := Parse(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("Parse(%q) err=%v, want err=%v", c.in, err, c.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if got != c.wantSec || ok != c.wantOK {
			t.Errorf("Parse(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.wantSec, c.wantOK)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	in := "2-03:04:05"
	sec, ok, err := Parse(in)
	if err != nil || !ok {
		t.Fatalf("Parse(%q) failed: %v", in, err)
	}
	if got := Format(sec); got != in {
		t.Errorf("Format(%d) = %q, want %q", sec, got, in)
	}
}
