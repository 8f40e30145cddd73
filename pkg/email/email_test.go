package email_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ali/pkg/email"
)

func TestDeriveNameFromEmail(t *testing.T) {
	cases := []struct {
		address string
		first   string
		last    string
	}{
		{"ana.souza@example.com", "Ana", "Souza"},
		{"joao_pedro.lima@example.com", "Joao", "Lima"},
		{"maria@example.com", "Maria", "User"},
		{"x+tag@example.com", "X", "Tag"},
		{"", "User", "User"},
	}

	for _, tc := range cases {
		first, last := email.DeriveNameFromEmail(tc.address)
		assert.Equal(t, tc.first, first, tc.address)
		assert.Equal(t, tc.last, last, tc.address)
	}
}
