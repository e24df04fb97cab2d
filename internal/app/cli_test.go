package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		withTrack bool
		want      Args
		ok        bool
	}{
		{"port only", []string{"19997"}, true, Args{Port: 19997, ConfigDir: "."}, true},
		{"notrack", []string{"--notrack", "19997"}, true, Args{Port: 19997, ConfigDir: ".", NoTrack: true}, true},
		{"single dash notrack", []string{"-notrack", "19997"}, true, Args{Port: 19997, ConfigDir: ".", NoTrack: true}, true},
		{"config dir", []string{"--config", "/etc/car", "19997"}, false, Args{Port: 19997, ConfigDir: "/etc/car"}, true},
		{"missing port", nil, true, Args{}, false},
		{"help", []string{"-h"}, true, Args{}, false},
		{"not a number", []string{"abc"}, true, Args{}, false},
		{"out of range", []string{"70000"}, true, Args{}, false},
		{"notrack without view", []string{"--notrack", "19997"}, false, Args{}, false},
		{"two ports", []string{"1", "2"}, true, Args{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, ok := ParseArgs("demo_car_gamepad", tt.args, tt.withTrack, &out)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.Empty(t, out.String())
			} else {
				assert.Contains(t, out.String(), "Usage: demo_car_gamepad")
			}
		})
	}
}
