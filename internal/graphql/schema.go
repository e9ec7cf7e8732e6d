// Package graphql serves the GraphQL API: the signed-in profile, a relay
// node lookup, the user connection and the updateProfile mutation.
package graphql

import (
	"context"
	"fmt"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/relay"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/module/auth"
	"github.com/simp-lee/hive/internal/module/user"
	"github.com/simp-lee/hive/internal/pkg"
	"github.com/simp-lee/hive/internal/pkg/validation"
)

// Object type names, also used as global id prefixes.
const (
	TypeProfile = "Profile"
	TypeUser    = "User"
)

const maxNameLength = 150

// profileNode and userNode tell the Node interface which object a user is
// exposed as.
type profileNode struct{ u *domain.User }
type userNode struct{ u *domain.User }

type userSource interface{ user() *domain.User }

func (n profileNode) user() *domain.User { return n.u }
func (n userNode) user() *domain.User    { return n.u }

// Resolver holds the services behind the schema.
type Resolver struct {
	auth   auth.Service
	users  domain.UserService
	limits user.PageLimits

	profileRules validation.Schema
}

// NewResolver creates a Resolver. limits bounds the users connection.
func NewResolver(authSvc auth.Service, users domain.UserService, limits user.PageLimits) *Resolver {
	return &Resolver{
		auth:   authSvc,
		users:  users,
		limits: limits,
		profileRules: validation.Schema{
			validation.On("firstName", validation.Length(0, maxNameLength)),
			validation.On("lastName", validation.Length(0, maxNameLength)),
		},
	}
}

// NewSchema builds the executable schema over r.
func NewSchema(r *Resolver) (graphql.Schema, error) {
	var profileType, userType *graphql.Object

	nodeDefs := relay.NewNodeDefinitions(relay.NodeDefinitionsConfig{
		IDFetcher: func(id string, _ graphql.ResolveInfo, ctx context.Context) (any, error) {
			return r.fetchNode(ctx, id)
		},
		TypeResolve: func(p graphql.ResolveTypeParams) *graphql.Object {
			switch p.Value.(type) {
			case profileNode:
				return profileType
			case userNode:
				return userType
			}
			return nil
		},
	})
	nodeInterface := nodeDefs.NodeInterface
	nodeField := nodeDefs.NodeField
	nodeField.Resolve = guard(nodeField.Resolve)

	roleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Role",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.ID), Resolve: roleField(func(r domain.Role) any { return r.UUID })},
			"name":        &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: roleField(func(r domain.Role) any { return r.Name })},
			"displayName": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: roleField(func(r domain.Role) any { return r.DisplayName })},
		},
	})

	profileType = graphql.NewObject(graphql.ObjectConfig{
		Name:       TypeProfile,
		Interfaces: []*graphql.Interface{nodeInterface},
		Fields:     personFields(TypeProfile),
	})

	userFields := personFields(TypeUser)
	userFields["emailVerifiedAt"] = &graphql.Field{Type: graphql.String, Resolve: userField(func(u *domain.User) any {
		if u.EmailVerifiedAt == nil {
			return nil
		}
		return u.EmailVerifiedAt.UTC().Format(time.RFC3339)
	})}
	userFields["createdAt"] = &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u *domain.User) any {
		return u.CreatedAt.UTC().Format(time.RFC3339)
	})}
	userFields["roles"] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(roleType))),
		Resolve: userField(func(u *domain.User) any {
			if u.Roles == nil {
				return []domain.Role{}
			}
			return u.Roles
		}),
	}
	userType = graphql.NewObject(graphql.ObjectConfig{
		Name:       TypeUser,
		Interfaces: []*graphql.Interface{nodeInterface},
		Fields:     userFields,
	})

	userConnectionDefs := relay.ConnectionDefinitions(relay.ConnectionConfig{
		Name:     TypeUser,
		NodeType: userType,
		ConnectionFields: graphql.Fields{
			"count": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"profile": &graphql.Field{
				Type:    graphql.NewNonNull(profileType),
				Resolve: guard(r.resolveProfile),
			},
			"node": nodeField,
			"users": &graphql.Field{
				Type:    graphql.NewNonNull(userConnectionDefs.ConnectionType),
				Args:    relay.ConnectionArgs,
				Resolve: guard(r.resolveUsers),
			},
		},
	})

	updateProfileInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "UpdateProfileInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"clientRequestId": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"firstName":       &graphql.InputObjectFieldConfig{Type: graphql.String},
			"lastName":        &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})
	updateProfilePayload := graphql.NewObject(graphql.ObjectConfig{
		Name: "UpdateProfilePayload",
		Fields: graphql.Fields{
			"clientRequestId": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (any, error) {
				return p.Source.(updateProfileResult).clientRequestID, nil
			}},
			"data": &graphql.Field{Type: profileType, Resolve: func(p graphql.ResolveParams) (any, error) {
				return profileNode{u: p.Source.(updateProfileResult).user}, nil
			}},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"updateProfile": &graphql.Field{
				Type: graphql.NewNonNull(updateProfilePayload),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(updateProfileInput)},
				},
				Resolve: guard(r.resolveUpdateProfile),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
		Types:    []graphql.Type{profileType, userType},
	})
}

// personFields are the fields shared by Profile and User.
func personFields(typeName string) graphql.Fields {
	return graphql.Fields{
		"id": &graphql.Field{Type: graphql.NewNonNull(graphql.ID), Resolve: userField(func(u *domain.User) any {
			return ToGlobalID(typeName, u.ID)
		})},
		"uuid":      &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u *domain.User) any { return u.UUID })},
		"email":     &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u *domain.User) any { return u.Email })},
		"firstName": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u *domain.User) any { return u.FirstName })},
		"lastName":  &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u *domain.User) any { return u.LastName })},
		"fullName":  &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: userField(func(u *domain.User) any { return u.FullName() })},
		"isActive":  &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Resolve: userField(func(u *domain.User) any { return u.Active })},
	}
}

func userField(get func(*domain.User) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		src, ok := p.Source.(userSource)
		if !ok {
			return nil, fmt.Errorf("unexpected %s source %T", p.Info.FieldName, p.Source)
		}
		return get(src.user()), nil
	}
}

func roleField(get func(domain.Role) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		return get(p.Source.(domain.Role)), nil
	}
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// guard turns resolver panics into unexpected errors.
func guard(fn graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				result, err = nil, domain.Unexpected(fmt.Errorf("resolver %s panicked: %v", p.Info.FieldName, rec))
			}
		}()
		return fn(p)
	}
}

// authenticated returns the principal of ctx, failing for anonymous callers.
func authenticated(ctx context.Context) (domain.Principal, error) {
	p := domain.PrincipalFrom(ctx)
	if !p.IsAuthenticated() {
		return nil, domain.ErrUnauthenticated
	}
	return p, nil
}

func resolverPath(p graphql.ResolveParams) []any {
	if p.Info.Path == nil {
		return []any{p.Info.FieldName}
	}
	return p.Info.Path.AsArray()
}

func (r *Resolver) resolveProfile(p graphql.ResolveParams) (any, error) {
	principal, err := authenticated(p.Context)
	if err != nil {
		return nil, err
	}
	u, err := r.auth.Profile(p.Context, principal)
	if err != nil {
		return nil, err
	}
	return profileNode{u: u}, nil
}

// fetchNode returns null for ids that are malformed, of an unknown type
// or that point at a missing object. Users the caller may not read are an
// authorization error.
func (r *Resolver) fetchNode(ctx context.Context, globalID string) (any, error) {
	principal, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}
	typeName, id, err := FromGlobalID(globalID)
	if err != nil {
		return nil, nil
	}

	switch typeName {
	case TypeProfile:
		if id != principal.PrincipalID() {
			return nil, nil
		}
		u, err := r.auth.Profile(ctx, principal)
		if err != nil {
			return nil, err
		}
		return profileNode{u: u}, nil
	case TypeUser:
		u, err := r.users.GetUser(ctx, id)
		if domain.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return userNode{u: u}, nil
	}
	return nil, nil
}

func (r *Resolver) resolveUsers(p graphql.ResolveParams) (any, error) {
	if _, err := authenticated(p.Context); err != nil {
		return nil, err
	}

	var args pkg.CursorArgs
	if v, ok := p.Args["first"].(int); ok {
		args.First = &v
	}
	if v, ok := p.Args["last"].(int); ok {
		args.Last = &v
	}
	if v, ok := p.Args["after"].(string); ok {
		args.After = &v
	}
	if v, ok := p.Args["before"].(string); ok {
		args.Before = &v
	}
	if errs := args.Validate(resolverPath(p)...); len(errs) > 0 {
		return nil, domain.NewErrorGroup(errs...)
	}

	page, err := r.users.ListUsers(p.Context, domain.ListQuery{
		Cursor:      args.Cursor(),
		Limit:       args.Limit(r.limits.Default, r.limits.Max),
		Forward:     args.Before == nil && args.Last == nil,
		IncludeMore: true,
	})
	if err != nil {
		return nil, err
	}
	return userConnection(page), nil
}

type updateProfileResult struct {
	clientRequestID any
	user            *domain.User
}

func (r *Resolver) resolveUpdateProfile(p graphql.ResolveParams) (any, error) {
	principal, err := authenticated(p.Context)
	if err != nil {
		return nil, err
	}

	input, _ := p.Args["input"].(map[string]any)
	values := make(map[string]any, len(input))
	for k, v := range input {
		values[k] = v
	}
	clientRequestID := values["clientRequestId"]
	delete(values, "clientRequestId")

	base := append(resolverPath(p), "input")
	err = validation.Validate(p.Context, validation.MapInput{Values: values, Schema: r.profileRules},
		validation.WithPrincipal(principal), validation.WithBasePath(base...))
	if err != nil {
		return nil, err
	}

	var in auth.ProfileInput
	if v, ok := values["firstName"].(string); ok {
		in.FirstName = &v
	}
	if v, ok := values["lastName"].(string); ok {
		in.LastName = &v
	}
	u, err := r.auth.UpdateProfile(p.Context, principal, in, validation.WithBasePath(base...))
	if err != nil {
		return nil, err
	}
	return updateProfileResult{clientRequestID: clientRequestID, user: u}, nil
}
