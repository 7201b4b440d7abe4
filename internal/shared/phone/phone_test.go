package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "919876543210", Normalize("9876543210", "91"))
	assert.Equal(t, "919876543210", Normalize("919876543210", "91"))
	assert.Equal(t, "919876543210", Normalize("+91 98765-43210", "91"))
	assert.Equal(t, "14155550123", Normalize("(415) 555-0123", "1"))
}

func TestChatID(t *testing.T) {
	assert.Equal(t, "919876543210@c.us", ChatID("98765 43210", "91"))
	assert.Equal(t, "919876543210@c.us", ChatID("+919876543210", "91"))
}
