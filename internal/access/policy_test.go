package access

import (
	"context"
	"testing"

	"makecoffee/internal/apperr"
	"makecoffee/models"
)

var (
	guest     = Identity{}
	creator   = Identity{UserID: 1, Username: "creator"}
	staff     = Identity{UserID: 2, Username: "staff", IsStaff: true}
	superuser = Identity{UserID: 3, Username: "root", IsSuperuser: true}
)

func TestRolePredicates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		id        Identity
		moderator bool
		creator   bool
		guest     bool
		admin     bool
	}{
		{"guest", guest, false, false, true, false},
		{"creator", creator, false, true, false, false},
		{"staff", staff, true, true, false, false},
		{"superuser", superuser, true, true, false, true},
		{"flags without account", Identity{IsStaff: true, IsSuperuser: true}, false, false, true, false},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsModerator(tt.id); got != tt.moderator {
				t.Fatalf("IsModerator = %t, want %t", got, tt.moderator)
			}
			if got := IsCreator(tt.id); got != tt.creator {
				t.Fatalf("IsCreator = %t, want %t", got, tt.creator)
			}
			if got := IsGuest(tt.id); got != tt.guest {
				t.Fatalf("IsGuest = %t, want %t", got, tt.guest)
			}
			if got := IsAdmin(tt.id); got != tt.admin {
				t.Fatalf("IsAdmin = %t, want %t", got, tt.admin)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		id       Identity
		endpoint Endpoint
		want     apperr.Kind
		allowed  bool
	}{
		{"guest lists catalog", guest, IngredientList, 0, true},
		{"creator lists catalog", creator, IngredientList, 0, true},
		{"guest cannot add to draft", guest, DraftAdd, apperr.KindUnauthorized, false},
		{"creator adds to draft", creator, DraftAdd, 0, true},
		{"creator cannot moderate", creator, RecipeModerate, apperr.KindForbidden, false},
		{"guest cannot moderate", guest, RecipeModerate, apperr.KindUnauthorized, false},
		{"staff moderates", staff, RecipeModerate, 0, true},
		{"superuser moderates", superuser, RecipeModerate, 0, true},
		{"creator cannot create ingredient", creator, IngredientCreate, apperr.KindForbidden, false},
		{"creator updates line", creator, LineUpdate, 0, true},
		{"signed in user cannot register", creator, UserRegister, apperr.KindForbidden, false},
		{"guest registers", guest, UserRegister, 0, true},
		{"unknown endpoint", superuser, Endpoint("reports.export"), apperr.KindForbidden, false},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Check(tt.id, tt.endpoint)
			if tt.allowed {
				if err != nil {
					t.Fatalf("Check(%s) = %v, want nil", tt.endpoint, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Check(%s) = nil, want %s", tt.endpoint, tt.want)
			}
			if got := apperr.KindOf(err); got != tt.want {
				t.Fatalf("Check(%s) kind = %s, want %s", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()).Authenticated() {
		t.Fatal("expected guest identity on bare context")
	}
	user := &models.User{Username: "barista", IsStaff: true}
	user.ID = 9
	ctx := WithIdentity(context.Background(), FromUser(user))
	id := FromContext(ctx)
	if id.UserID != 9 || !IsModerator(id) || id.Username != "barista" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if FromUser(nil).Authenticated() {
		t.Fatal("expected nil user to map to guest")
	}
}

func TestEveryPolicyEntryHasCapabilities(t *testing.T) {
	t.Parallel()

	for endpoint, capabilities := range Policy {
		if len(capabilities) == 0 {
			t.Fatalf("endpoint %s admits nobody", endpoint)
		}
	}
}
