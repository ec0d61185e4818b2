package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// InjectionCheckResult describes a filter value that looks like SQL injection.
type InjectionCheckResult struct {
	Member      string // Member the value was attached to
	Value       any    // The offending value
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValueForInjection runs libinjection over a single value.
// Only strings are checked; numbers, booleans and nil cannot carry injection.
// Returns nil when the value is clean.
//
// Example:
//
//	CheckValueForInjection("Customer.email", "user@example.com") // nil
//	CheckValueForInjection("Film.title", "'; DROP TABLE film--") // Fingerprint "s;T..." or similar
func CheckValueForInjection(member string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Member:      member,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}

// CheckQuery inspects every literal a query carries into the semantic layer:
// filter values and string date ranges of time dimensions.
// Results are returned in query order.
func CheckQuery(q *models.Query) []*InjectionCheckResult {
	if q == nil {
		return nil
	}

	var results []*InjectionCheckResult
	for _, f := range q.Filters {
		for _, v := range f.Values {
			if r := CheckValueForInjection(f.Member, v); r != nil {
				results = append(results, r)
			}
		}
	}
	for _, td := range q.TimeDimensions {
		switch dr := td.DateRange.(type) {
		case string:
			if r := CheckValueForInjection(td.Dimension, dr); r != nil {
				results = append(results, r)
			}
		case []any:
			for _, v := range dr {
				if r := CheckValueForInjection(td.Dimension, v); r != nil {
					results = append(results, r)
				}
			}
		}
	}
	return results
}

// ValidateQueryValues returns an ErrInvalidQuery-wrapped error naming the first
// suspicious value, or nil when the query is clean.
func ValidateQueryValues(q *models.Query) error {
	results := CheckQuery(q)
	if len(results) == 0 {
		return nil
	}
	first := results[0]
	return fmt.Errorf("%w: value for %s looks like SQL injection (fingerprint %s)",
		apperrors.ErrInvalidQuery, first.Member, first.Fingerprint)
}
