package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSensitivity(t *testing.T) {
	cases := []struct {
		question string
		want     Sensitivity
	}{
		{"What contracts has Acme Corp been awarded since 2023?", SensitivityPublic},
		{"Is there a black budget program funding this facility?", SensitivitySensitive},
		{"Has the intelligence community commented on this program?", SensitivitySensitive},
		{"SIGINT collection against a named target", SensitivitySensitive},
		{"Local zoning board minutes for downtown redevelopment", SensitivityPublic},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, detectSensitivity(c.question), c.question)
	}
}

func TestDetectSensitivityIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, SensitivitySensitive, detectSensitivity("A CLASSIFIED program run out of a Black Site"))
}
