// Package access decides which callers may reach which endpoints.
//
// Roles are flat predicates over the caller's flags. Each endpoint lists the
// capabilities that admit a caller; any single match is enough.
package access

import (
	"makecoffee/internal/apperr"
)

// Capability is one role predicate.
type Capability int

const (
	Guest Capability = iota
	Creator
	Moderator
	Admin
)

func (c Capability) String() string {
	switch c {
	case Guest:
		return "guest"
	case Creator:
		return "creator"
	case Moderator:
		return "moderator"
	case Admin:
		return "admin"
	}
	return "unknown"
}

func IsModerator(id Identity) bool { return id.Authenticated() && (id.IsStaff || id.IsSuperuser) }
func IsCreator(id Identity) bool   { return id.Authenticated() }
func IsGuest(id Identity) bool     { return !id.Authenticated() }
func IsAdmin(id Identity) bool     { return id.Authenticated() && id.IsSuperuser }

// Satisfies reports whether id holds capability c.
func (c Capability) Satisfies(id Identity) bool {
	switch c {
	case Guest:
		return IsGuest(id)
	case Creator:
		return IsCreator(id)
	case Moderator:
		return IsModerator(id)
	case Admin:
		return IsAdmin(id)
	}
	return false
}

// Endpoint names a protected operation.
type Endpoint string

const (
	IngredientList   Endpoint = "ingredients.list"
	IngredientShow   Endpoint = "ingredients.show"
	IngredientCreate Endpoint = "ingredients.create"
	IngredientUpdate Endpoint = "ingredients.update"
	IngredientDelete Endpoint = "ingredients.delete"
	IngredientImage  Endpoint = "ingredients.image"
	DraftAdd         Endpoint = "ingredients.draft"

	RecipeList     Endpoint = "recipes.list"
	RecipeShow     Endpoint = "recipes.show"
	RecipeUpdate   Endpoint = "recipes.update"
	RecipeSubmit   Endpoint = "recipes.submit"
	RecipeModerate Endpoint = "recipes.moderate"
	RecipeDelete   Endpoint = "recipes.delete"

	LineUpdate Endpoint = "lines.update"
	LineDelete Endpoint = "lines.delete"

	UserRegister Endpoint = "users.register"
	UserLogin    Endpoint = "users.login"
	UserLogout   Endpoint = "users.logout"
	UserUpdate   Endpoint = "users.update"
	UserShow     Endpoint = "users.show"
)

// Policy maps each endpoint onto the capabilities that admit a caller.
var Policy = map[Endpoint][]Capability{
	IngredientList:   {Guest, Creator},
	IngredientShow:   {Guest, Creator},
	IngredientCreate: {Moderator},
	IngredientUpdate: {Moderator},
	IngredientDelete: {Moderator},
	IngredientImage:  {Moderator},
	DraftAdd:         {Creator},

	RecipeList:     {Creator},
	RecipeShow:     {Creator},
	RecipeUpdate:   {Creator},
	RecipeSubmit:   {Creator},
	RecipeModerate: {Moderator},
	RecipeDelete:   {Creator},

	LineUpdate: {Admin, Moderator, Creator},
	LineDelete: {Admin, Moderator, Creator},

	UserRegister: {Guest},
	UserLogin:    {Guest, Creator},
	UserLogout:   {Creator},
	UserUpdate:   {Creator},
	UserShow:     {Creator},
}

// Check admits id to endpoint or explains why not. Guests refused by an
// endpoint get an Unauthorized error so clients know to sign in.
func Check(id Identity, endpoint Endpoint) error {
	required, ok := Policy[endpoint]
	if !ok {
		return apperr.Forbidden("access to %s is not permitted", endpoint)
	}
	for _, capability := range required {
		if capability.Satisfies(id) {
			return nil
		}
	}
	if !id.Authenticated() {
		return apperr.Unauthorized("authentication credentials were not provided")
	}
	return apperr.Forbidden("you do not have permission to perform this action")
}
