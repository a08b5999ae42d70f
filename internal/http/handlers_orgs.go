package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/uninbox/authd/internal/domain/org"
	apperrors "github.com/uninbox/authd/internal/errors"
	"github.com/uninbox/authd/internal/service"
)

// MembershipServiceInterface is the organization surface the handlers call.
type MembershipServiceInterface interface {
	CreateOrg(ctx context.Context, creatorID int64, shortcode, name string) (*org.Context, error)
	AddMember(ctx context.Context, actorID, orgID, accountID int64, role org.Role) (*org.Member, error)
	AcceptInvite(ctx context.Context, accountID, orgID int64) (*org.Member, error)
	RemoveMember(ctx context.Context, actorID, orgID, memberID int64) error
	ChangeRole(ctx context.Context, actorID, orgID, memberID int64, role org.Role) (*org.Member, error)
	RenameShortcode(ctx context.Context, actorID, orgID int64, shortcode string) (*org.Context, error)
}

var _ MembershipServiceInterface = (*service.MembershipService)(nil)

// OrgHandlers serve organization and membership management.
type OrgHandlers struct {
	Svc    MembershipServiceInterface
	Orgs   OrgResolver
	Logger *slog.Logger
}

func (h *OrgHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type createOrgRequest struct {
	Shortcode string `json:"shortcode"`
	Name      string `json:"name"`
}

// Create handles POST /api/orgs. The caller becomes the first admin.
func (h *OrgHandlers) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSessionInHandler(w, r, h.logger())
	if !ok {
		return
	}
	var req createOrgRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	oc, err := h.Svc.CreateOrg(r.Context(), sess.AccountID, req.Shortcode, req.Name)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusCreated, oc)
}

// Get handles GET /api/orgs/{shortcode}.
func (h *OrgHandlers) Get(w http.ResponseWriter, r *http.Request) {
	oc, _, ok := GetOrgFromContext(r.Context())
	if !ok {
		WriteAppError(w, r, h.logger(), apperrors.NotFound("organization not found"))
		return
	}
	WriteJSON(w, http.StatusOK, oc)
}

// orgScope returns the caller and the organization resolved by RequireOrgMember.
func (h *OrgHandlers) orgScope(w http.ResponseWriter, r *http.Request) (int64, *org.Context, bool) {
	sess, ok := requireSessionInHandler(w, r, h.logger())
	if !ok {
		return 0, nil, false
	}
	oc, _, ok := GetOrgFromContext(r.Context())
	if !ok {
		WriteAppError(w, r, h.logger(), apperrors.NotFound("organization not found"))
		return 0, nil, false
	}
	return sess.AccountID, oc, true
}

func memberIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("memberID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationField("member_id", "member id must be a positive integer")
	}
	return id, nil
}

type addMemberRequest struct {
	AccountID int64  `json:"account_id"`
	Role      string `json:"role"`
}

// AddMember handles POST /api/orgs/{shortcode}/members.
func (h *OrgHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	actorID, oc, ok := h.orgScope(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	role, _ := org.ParseRole(req.Role)
	m, err := h.Svc.AddMember(r.Context(), actorID, oc.ID, req.AccountID, role)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusCreated, m)
}

// Accept handles POST /api/orgs/{shortcode}/accept. It runs outside
// RequireOrgMember because the caller is only invited.
func (h *OrgHandlers) Accept(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSessionInHandler(w, r, h.logger())
	if !ok {
		return
	}
	oc, err := h.Orgs.Resolve(r.Context(), org.NormalizeShortcode(r.PathValue("shortcode")))
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	if oc == nil {
		WriteAppError(w, r, h.logger(), apperrors.NotFound("organization not found"))
		return
	}
	m, err := h.Svc.AcceptInvite(r.Context(), sess.AccountID, oc.ID)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /api/orgs/{shortcode}/members/{memberID}.
func (h *OrgHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, oc, ok := h.orgScope(w, r)
	if !ok {
		return
	}
	memberID, err := memberIDFromPath(r)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	if err := h.Svc.RemoveMember(r.Context(), actorID, oc.ID, memberID); err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole handles PATCH /api/orgs/{shortcode}/members/{memberID}.
func (h *OrgHandlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actorID, oc, ok := h.orgScope(w, r)
	if !ok {
		return
	}
	memberID, err := memberIDFromPath(r)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	var req changeRoleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	role, _ := org.ParseRole(req.Role)
	m, err := h.Svc.ChangeRole(r.Context(), actorID, oc.ID, memberID, role)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

type renameRequest struct {
	Shortcode string `json:"shortcode"`
}

// Rename handles PATCH /api/orgs/{shortcode}.
func (h *OrgHandlers) Rename(w http.ResponseWriter, r *http.Request) {
	actorID, oc, ok := h.orgScope(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Svc.RenameShortcode(r.Context(), actorID, oc.ID, req.Shortcode)
	if err != nil {
		WriteAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}
