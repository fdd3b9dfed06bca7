package main

import "testing"

func TestDebugRequested(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{nil, false},
		{[]string{"connect", "fra1"}, false},
		{[]string{"--debug", "connect", "fra1"}, true},
		{[]string{"connect", "fra1", "--debug=true"}, true},
		{[]string{"connect", "--", "--debug"}, false},
	}
	for _, tt := range tests {
		if got := debugRequested(tt.args); got != tt.want {
			t.Errorf("debugRequested(%q) = %v, want %v", tt.args, got, tt.want)
		}
	}
}
