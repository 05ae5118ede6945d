package utils_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-billing-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"string", "42", "42", true},
		{"float", float64(42), "42", true},
		{"json number", json.Number("7"), "7", true},
		{"bool", true, "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := utils.ToString(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestToStringSlice(t *testing.T) {
	require.Equal(t, []string{"admin", "viewer"}, utils.ToStringSlice([]any{"admin", 3, "viewer"}))
	require.Empty(t, utils.ToStringSlice(nil))
}

func TestPtr(t *testing.T) {
	a := utils.Ptr(3)
	b := utils.Ptr(3)
	require.Equal(t, 3, *a)
	require.NotSame(t, a, b)
}
