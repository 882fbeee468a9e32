package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLegacyDTO(t *testing.T) {
	tests := []struct {
		description string
		input       string
		want        configDTO
	}{
		{
			description: "both sections",
			input: `[container]
image = docker.io/metacubex/mihomo:v1.18

[instance]
name = utun
clash_root = /config/clash
`,
			want: configDTO{
				ContainerImage: stringPtr("docker.io/metacubex/mihomo:v1.18"),
				InstanceName:   stringPtr("utun"),
				ClashRoot:      stringPtr("/config/clash"),
			},
		},
		{
			description: "container section is optional",
			input: `[instance]
name = utun
subscription = https://example.com/sub?token=a=b
clash_root = /config/clash
`,
			want: configDTO{
				InstanceName: stringPtr("utun"),
				Subscription: stringPtr("https://example.com/sub?token=a=b"),
				ClashRoot:    stringPtr("/config/clash"),
			},
		},
		{
			description: "comments, blank values and key case",
			input: `# written by hand
; second comment
[container]
  Command=docker
workdir =

[instance]
name=utun
`,
			want: configDTO{
				ContainerCommand: stringPtr("docker"),
				InstanceName:     stringPtr("utun"),
			},
		},
		{
			description: "repeated section",
			input:       "[instance]\nname = a\n\n[instance]\nname = b\n",
			want:        configDTO{InstanceName: stringPtr("b")},
		},
		{
			description: "empty file",
			input:       "",
			want:        configDTO{},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			got, err := parseLegacyDTO([]byte(test.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("parseLegacyDTO() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLegacyDTO_Malformed(t *testing.T) {
	if _, err := parseLegacyDTO([]byte("[instance\nname = utun\n")); err == nil {
		t.Error("expected error but got none")
	}
}

func TestReadLegacyFile_Missing(t *testing.T) {
	dto, err := readLegacyFile(filepath.Join(t.TempDir(), "clash.ini"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(configDTO{}, dto); diff != "" {
		t.Errorf("readLegacyFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadLegacyFile_Unreadable(t *testing.T) {
	// a directory in place of the file cannot be read
	dir := filepath.Join(t.TempDir(), "clash.ini")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if _, err := readLegacyFile(dir); err == nil {
		t.Error("expected error but got none")
	}
}
