package speech

import (
	"testing"
	"time"
)

func TestRecordingEmpty(t *testing.T) {
	cases := []struct {
		name string
		rec  Recording
		want bool
	}{
		{name: "zero value", rec: Recording{}, want: true},
		{name: "zero duration", rec: Recording{Audio: []byte("x")}, want: true},
		{name: "no audio", rec: Recording{Duration: time.Second}, want: true},
		{name: "negative duration", rec: Recording{Audio: []byte("x"), Duration: -time.Second}, want: true},
		{name: "audio", rec: Recording{Audio: []byte("x"), Duration: time.Second}, want: false},
	}

	for _, tc := range cases {
		if got := tc.rec.Empty(); got != tc.want {
			t.Errorf("%s: Empty() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
