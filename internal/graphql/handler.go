package graphql

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// maxBodyBytes bounds the size of a request document.
const maxBodyBytes = 1 << 20

// Request is a GraphQL-over-HTTP request.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// Handler executes GraphQL requests against a schema.
type Handler struct {
	schema graphql.Schema
	log    *slog.Logger
}

// NewHandler creates a Handler. A nil log uses slog.Default.
func NewHandler(schema graphql.Schema, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{schema: schema, log: log}
}

// Mount registers the endpoint on r: POST for every operation and GET for
// queries only.
func (h *Handler) Mount(r gin.IRoutes, path string) {
	r.POST(path, h.Serve)
	r.GET(path, h.Serve)
}

// Serve handles one GraphQL request.
func (h *Handler) Serve(c *gin.Context) {
	req, err := decodeRequest(c)
	if err != nil {
		h.reject(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.reject(c, http.StatusBadRequest, "Must provide query string.")
		return
	}
	if c.Request.Method == http.MethodGet && isMutation(req) {
		c.Header("Allow", http.MethodPost)
		h.reject(c, http.StatusMethodNotAllowed, "Mutations must be sent with POST.")
		return
	}

	ctx := c.Request.Context()
	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
	result.Errors = formatErrors(ctx, h.log, result.Errors)
	h.write(c, http.StatusOK, result)
}

func (h *Handler) reject(c *gin.Context, status int, message string) {
	h.write(c, status, &graphql.Result{Errors: []gqlerrors.FormattedError{{
		Message:    message,
		Extensions: map[string]any{"code": CodeGraphQL, "message": message},
	}}})
}

func (h *Handler) write(c *gin.Context, status int, result *graphql.Result) {
	body, err := json.Marshal(result)
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "encode graphql response", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

func decodeRequest(c *gin.Context) (Request, error) {
	var req Request
	if c.Request.Method == http.MethodGet {
		q := c.Request.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				return req, errMalformed("variables")
			}
		}
		return req, nil
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return req, errMalformed("body")
	}
	if strings.HasPrefix(c.ContentType(), "application/graphql") {
		req.Query = string(body)
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errMalformed("body")
	}
	return req, nil
}

type malformedError string

func (e malformedError) Error() string { return "Malformed request " + string(e) + "." }

func errMalformed(part string) error { return malformedError(part) }

// isMutation reports whether the operation req selects is a mutation.
// Unparsable documents are left to the executor.
func isMutation(req Request) bool {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return false
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if req.OperationName != "" && (op.Name == nil || op.Name.Value != req.OperationName) {
			continue
		}
		if op.Operation == ast.OperationTypeMutation {
			return true
		}
	}
	return false
}
