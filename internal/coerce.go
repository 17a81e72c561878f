package internal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lychee-technology/tabula"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

var timeLayouts = []string{
	"15:04:05",
	"15:04",
}

// coerceValue converts one raw cell string into a typed value per the
// declared attribute type. Error messages are caller-facing and row-scoped by
// the validator. Relation values pass through unchanged for later resolution;
// undeclared types fall back to string.
func coerceValue(field string, attr tabula.AttributeDescriptor, raw string) (any, error) {
	switch attr.Type {
	case tabula.TypeInteger, tabula.TypeBigInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q must be a number", field)
		}
		return n, nil
	case tabula.TypeDecimal, tabula.TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q must be a decimal number", field)
		}
		return f, nil
	case tabula.TypeBoolean:
		return coerceBool(field, raw)
	case tabula.TypeDate, tabula.TypeDateTime, tabula.TypeTime:
		return coerceTemporal(field, attr.Type, raw)
	case tabula.TypeEmail:
		if !emailPattern.MatchString(strings.TrimSpace(raw)) {
			return nil, fmt.Errorf("%q must be a valid email", field)
		}
		return strings.TrimSpace(raw), nil
	case tabula.TypeEnumeration:
		value := strings.TrimSpace(raw)
		for _, allowed := range attr.Enum {
			if value == allowed {
				return value, nil
			}
		}
		return nil, fmt.Errorf("%q must be one of: %s", field, strings.Join(attr.Enum, ", "))
	case tabula.TypeRelation:
		return raw, nil
	default:
		return raw, nil
	}
}

func coerceBool(field, raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return nil, fmt.Errorf("%q must be true/false, 1/0, or yes/no", field)
	}
}

// coerceTemporal parses a calendar date or time-of-day and stores it back as
// an ISO-8601 string.
func coerceTemporal(field string, attrType tabula.AttributeType, raw string) (any, error) {
	value := strings.TrimSpace(raw)

	if attrType == tabula.TypeTime {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t.Format("15:04:05"), nil
			}
		}
		return nil, fmt.Errorf("%q must be a valid date", field)
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if attrType == tabula.TypeDate {
			return t.Format("2006-01-02"), nil
		}
		return t.UTC().Format(time.RFC3339), nil
	}
	return nil, fmt.Errorf("%q must be a valid date", field)
}
