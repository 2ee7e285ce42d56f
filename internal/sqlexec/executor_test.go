// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"testing"
)

func TestNormalizeValue(t *testing.T) {
	uuid := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"uuid array", uuid, "01020304-0506-0708-090a-0b0c0d0e0f10"},
		{"uuid bytes", uuid[:], "01020304-0506-0708-090a-0b0c0d0e0f10"},
		{"short bytes", []byte{0xbe, 0xef}, `\xbeef`},
		{"int passthrough", int64(42), int64(42)},
		{"string passthrough", "Ada", "Ada"},
		{"nil passthrough", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeValue(tt.in); got != tt.want {
				t.Errorf("normalizeValue(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
