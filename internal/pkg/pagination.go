package pkg

import (
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg/paging"
)

// Pagination query parameters.
const (
	ParamFirst  = "pagination[first]"
	ParamAfter  = "pagination[after]"
	ParamLast   = "pagination[last]"
	ParamBefore = "pagination[before]"
)

// CodeInvalidPagination is the code of every pagination parameter error.
const CodeInvalidPagination = "invalid_pagination"

// Limits used when the caller passes non-positive values.
const (
	defaultLimit = 20
	maxLimit     = 100
)

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// exclusive lists the argument pairs that cannot be combined. The error is
// reported on the second argument of each pair.
var exclusive = [][2]string{
	{"first", "last"},
	{"after", "before"},
	{"first", "before"},
	{"last", "after"},
}

// CursorArgs holds relay-style pagination arguments. Nil means absent.
type CursorArgs struct {
	First  *int
	Last   *int
	After  *string
	Before *string
}

func (a CursorArgs) has(name string) bool {
	switch name {
	case "first":
		return a.First != nil
	case "last":
		return a.Last != nil
	case "after":
		return a.After != nil
	case "before":
		return a.Before != nil
	}
	return false
}

// Validate reports every conflicting or non-positive argument. Each error
// path is base followed by the argument name.
func (a CursorArgs) Validate(base ...any) []*domain.AppError {
	at := func(name string) []any { return append(append([]any{}, base...), name) }

	var errs []*domain.AppError
	for _, pair := range exclusive {
		if a.has(pair[0]) && a.has(pair[1]) {
			errs = append(errs, domain.InputError(CodeInvalidPagination,
				"Cannot use both '"+pair[0]+"' and '"+pair[1]+"' at the same time.", at(pair[1])...))
		}
	}
	for _, arg := range []struct {
		name string
		v    *int
	}{{"first", a.First}, {"last", a.Last}} {
		if arg.v != nil && *arg.v <= 0 {
			errs = append(errs, domain.InputError(CodeInvalidPagination,
				"Value for '"+arg.name+"' must be greater than 0.", at(arg.name)...))
		}
	}
	return errs
}

// Limit returns first, else last, else defLimit, capped at limitCap.
// Non-positive bounds fall back to the package defaults.
func (a CursorArgs) Limit(defLimit, limitCap int) int {
	if defLimit <= 0 {
		defLimit = defaultLimit
	}
	if limitCap <= 0 {
		limitCap = maxLimit
	}
	limit := defLimit
	switch {
	case a.First != nil && *a.First > 0:
		limit = *a.First
	case a.Last != nil && *a.Last > 0:
		limit = *a.Last
	}
	return min(limit, limitCap)
}

// Cursor returns after, else before, else "".
func (a CursorArgs) Cursor() string {
	switch {
	case a.After != nil && *a.After != "":
		return *a.After
	case a.Before != nil:
		return *a.Before
	}
	return ""
}

// ParseCursorRequest reads the pagination[...] query parameters into a
// paging.Request. Conflicting or invalid parameters are reported together
// as one input error group. Only pagination[last] turns the page backward.
func ParseCursorRequest(c *gin.Context, defLimit, limitCap int) (paging.Request, error) {
	q := c.Request.URL.Query()
	first, firstErr := intParam(q, ParamFirst, "first")
	last, lastErr := intParam(q, ParamLast, "last")
	args := CursorArgs{
		First:  first,
		Last:   last,
		After:  stringParam(q, ParamAfter),
		Before: stringParam(q, ParamBefore),
	}
	errs := args.Validate("pagination")
	for _, err := range []*domain.AppError{firstErr, lastErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return paging.Request{}, domain.NewErrorGroup(errs...)
	}
	return paging.NewRequest(args.Cursor(), args.Limit(defLimit, limitCap), args.Last == nil), nil
}

// intParam returns nil for an absent parameter. A value that is not an
// integer is reported under pagination.name and read as absent.
func intParam(q url.Values, param, name string) (*int, *domain.AppError) {
	if !q.Has(param) {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(q.Get(param)))
	if err != nil {
		return nil, domain.InputError(CodeInvalidPagination,
			"Value for '"+name+"' must be an integer.", "pagination", name)
	}
	return &n, nil
}

func stringParam(q url.Values, name string) *string {
	if !q.Has(name) {
		return nil
	}
	v := q.Get(name)
	return &v
}

// PageLinks holds the navigation links of a cursor page. Absent links
// render as null.
type PageLinks struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	First    *string `json:"first"`
	Last     *string `json:"last"`
}

// CursorEnvelope is the JSON body of cursor-paginated list responses.
type CursorEnvelope[T any] struct {
	Link       string    `json:"link"`
	Data       []T       `json:"data"`
	Pagination PageLinks `json:"pagination"`
}

// NewCursorEnvelope builds the envelope for page. limit is the page size
// used in the generated links; other query parameters of the request are
// preserved.
func NewCursorEnvelope[T any](r *http.Request, page *domain.Page[T], limit int) CursorEnvelope[T] {
	base := requestURL(r)
	query := r.URL.Query()
	size := strconv.Itoa(limit)
	info := page.PageInfo

	env := CursorEnvelope[T]{
		Link:       base,
		Data:       page.Nodes(),
		Pagination: PageLinks{Count: info.Count},
	}
	if info.HasNextPage && info.EndCursor != nil {
		env.Pagination.Next = linkWith(base, query, map[string]string{ParamFirst: size, ParamAfter: *info.EndCursor})
	}
	if info.HasPreviousPage && info.StartCursor != nil {
		env.Pagination.Previous = linkWith(base, query, map[string]string{ParamLast: size, ParamBefore: *info.StartCursor})
	}
	if info.Count > 0 {
		env.Pagination.First = linkWith(base, query, map[string]string{ParamFirst: size})
		env.Pagination.Last = linkWith(base, query, map[string]string{ParamLast: size})
	}
	return env
}

// CursorList sends a 200 response with the envelope of page.
func CursorList[T any](c *gin.Context, page *domain.Page[T], limit int) {
	c.JSON(http.StatusOK, NewCursorEnvelope(c.Request, page, limit))
}

// linkWith drops every pagination parameter from query, applies set and
// appends the result to base.
func linkWith(base string, query url.Values, set map[string]string) *string {
	q := url.Values{}
	for k, v := range query {
		q[k] = slices.Clone(v)
	}
	for _, p := range []string{ParamFirst, ParamAfter, ParamLast, ParamBefore} {
		q.Del(p)
	}
	for k, v := range set {
		q.Set(k, v)
	}
	link := base + "?" + q.Encode()
	return &link
}

// requestURL returns the absolute URL of r without its query.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
	return u.String()
}

// FilterParams returns the non-empty query parameters that are candidates
// for Filter. Pagination parameters are excluded.
func FilterParams(c *gin.Context) map[string]string {
	filter := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if strings.HasPrefix(key, "pagination[") {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[key] = values[0]
		}
	}
	return filter
}

// Filter returns a GORM scope that applies WHERE conditions for filter.
// Only keys present in the allowed list are applied; others are silently ignored.
// Keys ending with "__like" produce a LIKE '%value%' condition; others use exact match.
func Filter(filter map[string]string, allowed []string) func(db *gorm.DB) *gorm.DB {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return func(db *gorm.DB) *gorm.DB {
		for _, key := range keys {
			value := filter[key]
			field, like := strings.CutSuffix(key, "__like")
			if !validFieldName.MatchString(field) || !slices.Contains(allowed, field) {
				continue
			}
			if like {
				db = db.Where(field+" LIKE ?", "%"+value+"%")
			} else {
				db = db.Where(field+" = ?", value)
			}
		}
		return db
	}
}
