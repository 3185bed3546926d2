package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgtype/pgxtype"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

// TimeFormat is the text form of timestamps read and written as attributes. Always UTC.
const TimeFormat = "2006-01-02 15:04:05"

var acceptedTimeFormats = []string{
	TimeFormat,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var acronyms = map[string]string{
	"id":  "ID",
	"dn":  "DN",
	"vo":  "VO",
	"cpu": "CPU",
}

// Attributes that only dedicated operations may write.
var readOnlyAttributes = map[string]string{
	"JobID":             "job ids are assigned by the store",
	"Status":            "use RequestTransition or OverrideStatus",
	"HeartBeatTime":     "use RecordHeartbeat",
	"RescheduleCounter": "use Reschedule",
}

type column struct {
	attribute string
	name      string
	dataType  string
	nullable  bool
}

type schema struct {
	// lower cased attribute name -> column
	byAttribute map[string]column
	ordered     []column
}

// introspect reads the columns of the jobs table.
func introspect(ctx context.Context, db pgxtype.Querier) (*schema, error) {
	rows, err := db.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'jobs'
		ORDER BY ordinal_position`)
	if err != nil {
		return nil, wmserrors.NewStorageError("introspect", err)
	}
	defer rows.Close()

	s := &schema{byAttribute: map[string]column{}}
	for rows.Next() {
		c := column{}
		if err := rows.Scan(&c.name, &c.dataType, &c.nullable); err != nil {
			return nil, wmserrors.NewStorageError("introspect", err)
		}
		c.attribute = attributeName(c.name)
		s.byAttribute[strings.ToLower(c.attribute)] = c
		s.ordered = append(s.ordered, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wmserrors.NewStorageError("introspect", err)
	}
	if len(s.ordered) == 0 {
		return nil, errors.New("jobs table not found, has the database been migrated?")
	}
	return s, nil
}

// attributeName turns a column name such as owner_dn into the attribute name OwnerDN.
func attributeName(columnName string) string {
	var sb strings.Builder
	for _, part := range strings.Split(columnName, "_") {
		if part == "" {
			continue
		}
		if acronym, ok := acronyms[part]; ok {
			sb.WriteString(acronym)
			continue
		}
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	return sb.String()
}

func (s *schema) names() []string {
	names := make([]string, len(s.ordered))
	for i, c := range s.ordered {
		names[i] = c.attribute
	}
	return names
}

func (s *schema) lookup(attribute string) (column, error) {
	c, ok := s.byAttribute[strings.ToLower(strings.TrimSpace(attribute))]
	if !ok {
		return column{}, errors.WithStack(&wmserrors.ErrInvalidArgument{
			Name:    "attribute",
			Value:   attribute,
			Message: "not a job attribute",
		})
	}
	return c, nil
}

// columns resolves attribute names, or every attribute when none are given.
func (s *schema) columns(attributes []string) ([]column, error) {
	if len(attributes) == 0 {
		return s.ordered, nil
	}
	result := make([]column, 0, len(attributes))
	for _, a := range attributes {
		c, err := s.lookup(a)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// writable resolves an attribute the caller wants to set.
func (s *schema) writable(attribute string) (column, error) {
	c, err := s.lookup(attribute)
	if err != nil {
		return column{}, err
	}
	if reason, ok := readOnlyAttributes[c.attribute]; ok {
		return column{}, errors.WithStack(&wmserrors.ErrInvalidArgument{
			Name:    "attribute",
			Value:   attribute,
			Message: "attribute is read only: " + reason,
		})
	}
	return c, nil
}

func (c column) identifier() string {
	return pgx.Identifier{c.name}.Sanitize()
}

func (c column) isTimestamp() bool {
	return c.dataType == "timestamp with time zone" || c.dataType == "timestamp without time zone"
}

// textExpression renders the column as text, timestamps in TimeFormat and NULL as ''.
func (c column) textExpression() string {
	if c.isTimestamp() {
		return "COALESCE(to_char(" + c.identifier() + " AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS'), '')"
	}
	return "COALESCE(" + c.identifier() + "::text, '')"
}

// parse converts the text form of a value into the column's type.
func (c column) parse(value string) (interface{}, error) {
	invalid := func(message string) error {
		return errors.WithStack(&wmserrors.ErrInvalidArgument{Name: c.attribute, Value: value, Message: message})
	}
	trimmed := strings.TrimSpace(value)
	switch c.dataType {
	case "integer", "smallint":
		i, err := strconv.ParseInt(trimmed, 10, 32)
		if err != nil {
			return nil, invalid("expected an integer")
		}
		return int32(i), nil
	case "bigint":
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, invalid("expected an integer")
		}
		return i, nil
	case "boolean":
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, invalid("expected true or false")
		}
		return b, nil
	case "timestamp with time zone", "timestamp without time zone":
		if trimmed == "" || strings.EqualFold(trimmed, "None") || strings.EqualFold(trimmed, "NULL") {
			if !c.nullable {
				return nil, invalid("value required")
			}
			return nil, nil
		}
		for _, layout := range acceptedTimeFormats {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, invalid("expected a time formatted as " + TimeFormat)
	default:
		return value, nil
	}
}
