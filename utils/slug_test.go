package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Kimchi Jjigae", "kimchi-jjigae"},
		{"Kimchi Jjigae (김치찌개)", "kimchi-jjigae"},
		{"  Spicy!! Tteokbokki  ", "spicy-tteokbokki"},
		{"Bibimbap", "bibimbap"},
		{"BBQ & Rice", "bbq-rice"},
		{"!!!", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Slugify(c.in), "Slugify(%q)", c.in)
	}
}

func TestIsValidSlug(t *testing.T) {
	assert.True(t, IsValidSlug("kimchi-jjigae"))
	assert.True(t, IsValidSlug("dish_42"))
	assert.False(t, IsValidSlug(""))
	assert.False(t, IsValidSlug("Kimchi"))
	assert.False(t, IsValidSlug("kimchi jjigae"))
	assert.False(t, IsValidSlug("../etc/passwd"))
}

func TestValidateSlug(t *testing.T) {
	assert.NoError(t, ValidateSlug("kimchi-jjigae", "slug"))

	err := ValidateSlug("", "slug")
	assert.EqualError(t, err, "slug is required")

	err = ValidateSlug("Bad Slug", "slug")
	assert.ErrorContains(t, err, "lowercase")
}
