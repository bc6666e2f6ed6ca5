package policy

import "testing"

func TestParseContent(t *testing.T) {
	tests := []struct {
		name              string
		raw               string
		wantErr           bool
		wantComprehensive bool
	}{
		{
			name:              "default service with assign operator",
			raw:               `{"services":{"default":{"opt_out_policy":{"@@assign":"optOut"}}}}`,
			wantComprehensive: true,
		},
		{
			name:              "effective policy with plain value",
			raw:               `{"services":{"default":{"opt_out_policy":"optOut"}}}`,
			wantComprehensive: true,
		},
		{
			name:              "single service",
			raw:               `{"services":{"comprehend":{"opt_out_policy":{"@@assign":"optOut"}}}}`,
			wantComprehensive: false,
		},
		{
			name:              "missing services key",
			raw:               `{"something":{}}`,
			wantComprehensive: false,
		},
		{
			name:    "malformed",
			raw:     `{"services":`,
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseContent(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseContent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if c.IsComprehensive() != tt.wantComprehensive {
				t.Errorf("IsComprehensive() = %v, want %v", c.IsComprehensive(), tt.wantComprehensive)
			}
		})
	}
}

func TestDefaultContent(t *testing.T) {
	raw, err := DefaultContent().JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	want := `{"services":{"default":{"opt_out_policy":{"@@assign":"optOut"}}}}`
	if raw != want {
		t.Errorf("JSON() = %s, want %s", raw, want)
	}

	c, err := ParseContent(raw)
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	if !c.IsComprehensive() {
		t.Error("default content should be comprehensive")
	}
}
