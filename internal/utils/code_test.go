package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCode(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 30, 0, 123*int(time.Millisecond), time.UTC)

	t.Run("Format", func(t *testing.T) {
		code := GenerateCode("ORD", now)

		parts := strings.Split(code, "-")
		if assert.Len(t, parts, 5) {
			assert.Equal(t, "ORD", parts[0])
			assert.Equal(t, "20260304", parts[1])
			assert.Equal(t, "103000", parts[2])
			assert.Equal(t, "123", parts[3])
			assert.Len(t, parts[4], 4)
		}
	})

	t.Run("UTC", func(t *testing.T) {
		jakarta := time.FixedZone("WIB", 7*3600)
		code := GenerateCode("RFD", time.Date(2026, 3, 4, 2, 0, 0, 0, jakarta))
		assert.True(t, strings.HasPrefix(code, "RFD-20260303-190000-"))
	})
}

func TestPointerHelpers(t *testing.T) {
	assert.Equal(t, "x", *StrPtr("x"))
	assert.Equal(t, "", PtrString(nil))
	assert.Equal(t, "y", PtrString(StrPtr("y")))

	now := time.Now()
	assert.Equal(t, now, *TimePtr(now))
}
