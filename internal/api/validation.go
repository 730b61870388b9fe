package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/kiiskristo/marketpulse-backend/internal/domain/portfolio"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// ValidationDetail is one entry of a 422 response body.
type ValidationDetail struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

// ValidationResponse is the body of a 422 response.
type ValidationResponse struct {
	Detail []ValidationDetail `json:"detail"`
}

const (
	locQuery = "query"
	locBody  = "body"
)

const msgRequired = "field required"

// writeValidation answers 422 with one detail per validation error found
// in err. source is "query" or "body".
func writeValidation(w http.ResponseWriter, source string, err error) {
	verrs := portfolio.ValidationErrors(err)

	resp := ValidationResponse{Detail: make([]ValidationDetail, 0, len(verrs))}
	for _, v := range verrs {
		resp.Detail = append(resp.Detail, ValidationDetail{
			Loc:  location(source, v.Field),
			Msg:  v.Message,
			Type: detailType(v),
		})
	}
	if len(resp.Detail) == 0 {
		resp.Detail = append(resp.Detail, ValidationDetail{
			Loc:  []interface{}{source},
			Msg:  err.Error(),
			Type: "value_error",
		})
	}

	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func location(source, field string) []interface{} {
	loc := []interface{}{source}
	if field == "" {
		return loc
	}
	for _, part := range strings.Split(field, ".") {
		if n, err := strconv.Atoi(part); err == nil {
			loc = append(loc, n)
			continue
		}
		loc = append(loc, part)
	}
	return loc
}

func detailType(v *errors.ValidationError) string {
	switch v.Message {
	case msgRequired:
		return "missing"
	case "invalid JSON body":
		return "json_invalid"
	}
	return "value_error"
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
