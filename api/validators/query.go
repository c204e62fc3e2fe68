package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
	"github.com/angelmondragon/stocksync-backend/pkg/pagination"
)

// IntRange bounds an integer query parameter. Default applies when the key is absent.
type IntRange struct {
	Default, Min, Max int
}

// PageRange is the limit range every cursor-paginated list accepts.
var PageRange = IntRange{Default: pagination.DefaultLimit, Min: 1, Max: pagination.MaxLimit}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func badQuery(key, message string, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

func QueryInt(r *http.Request, key string, rng IntRange) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return rng.Default, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badQuery(key, "query parameter must be numeric", nil)
	}
	if n < rng.Min || n > rng.Max {
		return 0, badQuery(key, "query parameter out of range", map[string]any{"min": rng.Min, "max": rng.Max})
	}
	return n, nil
}

// QueryBool accepts true/false, 1/0 and yes/no. Absent is false.
func QueryBool(r *http.Request, key string) (bool, error) {
	switch strings.ToLower(queryValue(r, key)) {
	case "", "false", "0", "no":
		return false, nil
	case "true", "1", "yes":
		return true, nil
	}
	return false, badQuery(key, "query parameter must be a boolean", nil)
}

// QueryUUID reads an optional uuid; absent yields nil.
func QueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, badQuery(key, "query parameter must be a uuid", nil)
	}
	return &id, nil
}

// Page reads the limit and cursor parameters of a list endpoint. The cursor
// is decoded so a tampered token fails here rather than in the repository.
func Page(r *http.Request) (pagination.Params, error) {
	limit, err := QueryInt(r, "limit", PageRange)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := queryValue(r, "cursor")
	if cursor != "" {
		if _, err := pagination.Decode(cursor); err != nil {
			return pagination.Params{}, badQuery("cursor", "invalid cursor", nil)
		}
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}
