package modbusclient

import (
	"testing"
)

func TestDecode(t *testing.T) {

	var tests = []struct {
		name     string
		expected int
		given    []byte
	}{
		{
			name:     "8bit negative",
			expected: -28,
			given:    []byte{0xe4},
		},
		{
			name:     "16bit negative",
			expected: -5,
			given:    []byte{0xff, 0xfb},
		},
		{
			name:     "16bit positive",
			expected: 285,
			given:    []byte{0x01, 0x1d},
		},
		{
			name:     "16bit scaled setpoint",
			expected: 280,
			given:    []byte{0x01, 0x18},
		},
		{
			name:     "32bit positive",
			expected: 514773,
			given:    []byte{0x00, 0x07, 0xda, 0xd5},
		},
		{
			name:     "32bit negative",
			expected: -29,
			given:    []byte{0xff, 0xff, 0xff, 0xe3},
		},
		{
			name:     "empty response",
			expected: 0,
			given:    nil,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			actual := Decode(tt.given)
			if actual != tt.expected {
				t.Errorf("given(%#v): expected %d, actual %d", tt.given, tt.expected, actual)
			}
		})
	}

}

func TestCoilValue(t *testing.T) {
	if CoilValue(true) != WriteCoilValueOn {
		t.Error("expected 0xff00 for on")
	}
	if CoilValue(false) != WriteCoilValueOff {
		t.Error("expected 0 for off")
	}
}
