package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "5511999998888", DigitsOnly("+55 (11) 99999-8888"))
	assert.Equal(t, "", DigitsOnly("abc"))
	assert.Equal(t, "123", DigitsOnly("1a2b3c"))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		prefix   string
		expected string
	}{
		{"local 11 digits gets country prefix", "11999998888", "55", "+5511999998888"},
		{"local 10 digits gets country prefix", "1133334444", "55", "+551133334444"},
		{"already has country prefix", "5511999998888", "55", "+5511999998888"},
		{"formatted input is stripped first", "+55 (11) 99999-8888", "55", "+5511999998888"},
		{"other international number passes through", "4915112345678", "55", "+4915112345678"},
		{"empty prefix falls back to default", "11999998888", "", "+5511999998888"},
		{"empty input", "  ", "55", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.raw, tt.prefix))
		})
	}
}
