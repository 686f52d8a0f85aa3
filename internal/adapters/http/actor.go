package httpadapter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

const (
	actorIDHeader           = "X-Actor-Id"
	actorRoleHeader         = "X-Actor-Role"
	actorOrganizationHeader = "X-Actor-Organization"
)

type actorHandler func(w http.ResponseWriter, r *http.Request, actor domain.Actor)

// withActor resolves the actor descriptor set by the identity provider in
// front of the API. Requests without a complete descriptor get 401.
func (rt *Router) withActor(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, actor)
	}
}

func actorFromRequest(r *http.Request) (domain.Actor, error) {
	const op = "resolve actor"
	id := strings.TrimSpace(r.Header.Get(actorIDHeader))
	organization := strings.TrimSpace(r.Header.Get(actorOrganizationHeader))
	if id == "" || organization == "" {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthenticated, op, errors.New("actor headers are required"))
	}
	if organization == domain.AllOrganizations {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthenticated, op, errors.New("invalid actor organization"))
	}
	role, ok := domain.ParseRole(r.Header.Get(actorRoleHeader))
	if !ok {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthenticated, op, errors.New("invalid actor role"))
	}
	return domain.Actor{ID: id, Role: role, Organization: organization}, nil
}

func (rt *Router) originFromRequest(r *http.Request) domain.Origin {
	return domain.Origin{
		Address:   clientAddress(r, rt.trustForwardedFor),
		UserAgent: r.UserAgent(),
	}
}
