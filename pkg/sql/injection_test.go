package sql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

func TestCheckValueForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           any
		expectInjection bool
	}{
		// Clean values
		{name: "clean id", value: "12345"},
		{name: "clean email address", value: "user@example.com"},
		{name: "clean date string", value: "2024-01-15"},
		{name: "clean UUID", value: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "clean search term", value: "laptop computers"},

		// Non-string values
		{name: "integer value", value: 100},
		{name: "float value", value: 99.95},
		{name: "boolean value", value: true},
		{name: "nil value", value: nil},

		// Classic injection patterns
		{name: "OR tautology", value: "' OR '1'='1", expectInjection: true},
		{name: "stacked drop table", value: "'; DROP TABLE users--", expectInjection: true},
		{name: "union select", value: "1 UNION SELECT * FROM passwords", expectInjection: true},
		{name: "comment truncation", value: "admin'--", expectInjection: true},
		{name: "numeric tautology", value: "' OR 1=1--", expectInjection: true},
		{name: "time based", value: "1' AND SLEEP(5)--", expectInjection: true},

		// Edge cases
		{name: "empty string", value: ""},
		{name: "legitimate apostrophe", value: "O'Brien"},
		{name: "double dash in text", value: "This is a note -- with dashes"},
		{name: "SQL keywords in prose", value: "SELECT the best option from the menu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckValueForInjection("Film.title", tt.value)

			if !tt.expectInjection {
				if result != nil {
					t.Errorf("expected no injection detection (nil), got result: %+v", result)
				}
				return
			}

			if result == nil {
				t.Fatalf("expected injection detection, got nil")
			}
			if result.Member != "Film.title" {
				t.Errorf("expected Member=Film.title, got %q", result.Member)
			}
			if result.Value != tt.value {
				t.Errorf("expected Value=%v, got %v", tt.value, result.Value)
			}
			if result.Fingerprint == "" {
				t.Errorf("expected non-empty fingerprint")
			}
		})
	}
}

func TestCheckQuery(t *testing.T) {
	tests := []struct {
		name          string
		query         *models.Query
		expectMembers []string
	}{
		{
			name:  "nil query",
			query: nil,
		},
		{
			name: "clean filters",
			query: &models.Query{
				Dimensions: []string{"Film.title"},
				Filters: []models.Filter{
					{Member: "Film.rating", Operator: models.OperatorEquals, Values: []any{"2024-01-15", "user@example.com"}},
					{Member: "Film.length", Operator: models.OperatorGT, Values: []any{float64(90)}},
				},
			},
		},
		{
			name: "injection in second filter",
			query: &models.Query{
				Measures: []string{"Rental.count"},
				Filters: []models.Filter{
					{Member: "Customer.email", Operator: models.OperatorEquals, Values: []any{"mary@example.com"}},
					{Member: "Customer.last_name", Operator: models.OperatorEquals, Values: []any{"12345", "' OR '1'='1"}},
				},
			},
			expectMembers: []string{"Customer.last_name"},
		},
		{
			name: "injection in time dimension date range",
			query: &models.Query{
				Measures: []string{"Payment.total"},
				TimeDimensions: []models.TimeDimension{
					{Dimension: "Payment.payment_date", DateRange: []any{"2005-05-01", "'; DROP TABLE payment--"}},
				},
			},
			expectMembers: []string{"Payment.payment_date"},
		},
		{
			name: "relative date range is clean",
			query: &models.Query{
				Measures: []string{"Payment.total"},
				TimeDimensions: []models.TimeDimension{
					{Dimension: "Payment.payment_date", Granularity: "month", DateRange: "last year"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := CheckQuery(tt.query)

			var members []string
			for _, r := range results {
				members = append(members, r.Member)
			}
			assert.Equal(t, tt.expectMembers, members)
		})
	}
}

func TestValidateQueryValues(t *testing.T) {
	clean := &models.Query{
		Dimensions: []string{"Film.title"},
		Filters:    []models.Filter{{Member: "Film.rating", Operator: models.OperatorEquals, Values: []any{"laptop computers"}}},
	}
	assert.NoError(t, ValidateQueryValues(clean))

	dirty := clean.Clone()
	dirty.Filters[0].Values = []any{"admin'--"}

	err := ValidateQueryValues(dirty)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidQuery))
	assert.Contains(t, err.Error(), "Film.rating")
}
