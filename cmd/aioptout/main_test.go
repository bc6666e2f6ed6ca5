package main

import (
	"strings"
	"testing"
)

func TestCheckCmd_RejectsMode(t *testing.T) {
	t.Cleanup(func() { mode = "" })

	tests := []struct {
		name string
		args []string
	}{
		{name: "strict", args: []string{"check", "--mode", "strict"}},
		{name: "rule", args: []string{"check", "--mode=rule"}},
		{name: "before subcommand", args: []string{"--mode", "strict", "check"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetArgs(tt.args)

			err := root.Execute()
			if err == nil || !strings.Contains(err.Error(), "--mode is not supported") {
				t.Errorf("Execute(%v) error = %v, want --mode rejected", tt.args, err)
			}
		})
	}
}
