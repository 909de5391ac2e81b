package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single broker", "kafka-1:9092", []string{"kafka-1:9092"}},
		{"varied spacing", "kafka-1:9092,  kafka-2:9092 ", []string{"kafka-1:9092", "kafka-2:9092"}},
		{"trailing comma", "TRADE_SETTLED,", []string{"TRADE_SETTLED"}},
		{"only spaces", "   ", nil},
		{"commas only", ",,", nil},
		{"internal spaces preserved", "USD Cash, EUR Cash", []string{"USD Cash", "EUR Cash"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}
