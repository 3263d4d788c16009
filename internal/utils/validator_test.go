package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sampleItem struct {
	Name string `json:"name" validate:"required,notblank"`
}

type sampleBatch struct {
	Items []sampleItem `json:"items" validate:"required,min=1,dive"`
}

func TestValidationDetailsUseJSONPaths(t *testing.T) {
	err := NewValidator().Struct(sampleBatch{Items: []sampleItem{{Name: "ok"}, {Name: "   "}}})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	details := ValidationDetails(validationErrors)
	require.Len(t, details, 1)
	require.Equal(t, "items[1].name", details[0].Field)
	require.Equal(t, "notblank", details[0].Rule)
}

func TestValidatorRejectsEmptyBatch(t *testing.T) {
	err := NewValidator().Struct(sampleBatch{})
	require.Error(t, err)
}
