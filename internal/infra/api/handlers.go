package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/infra/logging"
	"product-entitlements/internal/usecase"
)

// ===== activation =====

type generateRequest struct {
	Level         string `json:"level,omitempty"`
	ProductSlug   string `json:"productSlug,omitempty"`
	Quantity      int    `json:"quantity"`
	ExpiresInDays *int   `json:"expiresInDays,omitempty"`
	DurationDays  *int   `json:"durationDays,omitempty"`
}

type generateResponse struct {
	BatchID string   `json:"batchId"`
	Codes   []string `json:"codes"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFrom(ctx)
	now := s.now()

	if err := s.limiter.Guard(ctx, p.UserID, usecase.ActionGenerate, now); err != nil {
		writeError(w, err)
		return
	}

	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	grant, err := grantFrom(req)
	if err != nil {
		s.limiter.RecordAttempt(ctx, p.UserID, usecase.ActionGenerate, false)
		writeError(w, err)
		return
	}

	batch, err := s.activation.GenerateBatch(ctx, usecase.GenerateRequest{
		Grant:         grant,
		Quantity:      req.Quantity,
		ExpiresInDays: req.ExpiresInDays,
		DurationDays:  req.DurationDays,
		IssuedBy:      p.UserID,
	}, now)
	s.limiter.RecordAttempt(ctx, p.UserID, usecase.ActionGenerate, err == nil)
	if err != nil {
		s.logFailure(r, err, "generate batch failed")
		writeError(w, err)
		return
	}

	resp := generateResponse{BatchID: batch.ID, Codes: make([]string, 0, len(batch.Codes))}
	for _, c := range batch.Codes {
		resp.Codes = append(resp.Codes, c.Code)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// grantFrom accepts exactly one of level or productSlug.
func grantFrom(req generateRequest) (model.Grant, error) {
	switch {
	case req.Level != "" && req.ProductSlug != "":
		return model.Grant{}, domain.ErrInvalidGrant
	case req.ProductSlug != "":
		return model.ProductGrant(req.ProductSlug), nil
	default:
		level, err := model.ParseLevel(req.Level)
		if err != nil {
			return model.Grant{}, err
		}
		return model.MembershipGrant(level), nil
	}
}

type codeView struct {
	Code          string     `json:"code"`
	GrantKind     string     `json:"grantKind"`
	Level         string     `json:"level,omitempty"`
	ProductSlug   string     `json:"productSlug,omitempty"`
	DurationDays  int        `json:"durationDays"`
	CodeExpiresAt *time.Time `json:"codeExpiresAt,omitempty"`
	Used          bool       `json:"used"`
	UsedBy        *string    `json:"usedBy,omitempty"`
	UsedAt        *time.Time `json:"usedAt,omitempty"`
}

func (s *Server) handleListBatch(w http.ResponseWriter, r *http.Request) {
	codes, err := s.activation.ListBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]codeView, 0, len(codes))
	for _, c := range codes {
		out = append(out, codeView{
			Code:          c.Code,
			GrantKind:     string(c.Grant.Kind),
			Level:         string(c.Grant.Level),
			ProductSlug:   c.Grant.ProductSlug,
			DurationDays:  c.DurationDays,
			CodeExpiresAt: c.CodeExpiresAt,
			Used:          c.Used,
			UsedBy:        c.UsedBy,
			UsedAt:        c.UsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"batchId": chi.URLParam(r, "id"), "codes": out})
}

type activateRequest struct {
	Code string `json:"code"`
}

type activateResponse struct {
	GrantKind   string     `json:"grantKind"`
	Level       string     `json:"level,omitempty"`
	ProductSlug string     `json:"productSlug,omitempty"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	DaysAdded   int        `json:"daysAdded"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := PrincipalFrom(ctx)
	now := s.now()

	if err := s.limiter.Guard(ctx, p.UserID, usecase.ActionActivate, now); err != nil {
		writeError(w, err)
		return
	}

	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, domain.ErrInvalidArgument)
		return
	}

	red, err := s.activation.Redeem(ctx, req.Code, p.UserID, now)
	switch {
	case err == nil:
		s.limiter.RecordAttempt(ctx, p.UserID, usecase.ActionActivate, true)
	case errors.Is(err, domain.ErrCodeNotFound), errors.Is(err, domain.ErrCodeExpired), errors.Is(err, domain.ErrCodeAlreadyUsed):
		// guessing codes is what the limiter throttles
		s.limiter.RecordAttempt(ctx, p.UserID, usecase.ActionActivate, false)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, activateResponse{
		GrantKind:   string(red.Grant.Kind),
		Level:       string(red.Level),
		ProductSlug: red.Grant.ProductSlug,
		Name:        red.Name,
		ExpiresAt:   red.ExpiresAt,
		DaysAdded:   red.DaysAdded,
	})
}

// ===== membership =====

type membershipView struct {
	UserID      string     `json:"userId"`
	Level       string     `json:"level"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	Active      bool       `json:"active"`
}

func toMembershipView(m *model.Membership, now time.Time) membershipView {
	eff := m.EffectiveLevel(now)
	return membershipView{
		UserID:      m.UserID,
		Level:       string(eff),
		Name:        eff.Name(),
		ExpiresAt:   m.ExpiresAt,
		ActivatedAt: m.ActivatedAt,
		Active:      m.Active(now),
	}
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	m, err := s.members.Get(r.Context(), p.UserID)
	if err != nil {
		s.logFailure(r, err, "load membership failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipView(m, s.now()))
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.members.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipView(m, s.now()))
}

type purchaseView struct {
	ID           string     `json:"id"`
	ProductSlug  string     `json:"productSlug"`
	PurchaseType string     `json:"purchaseType"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	Active       bool       `json:"active"`
}

func (s *Server) handleMyPurchases(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	s.writePurchases(w, r, p.UserID)
}

func (s *Server) handleMemberPurchases(w http.ResponseWriter, r *http.Request) {
	s.writePurchases(w, r, chi.URLParam(r, "id"))
}

func (s *Server) writePurchases(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := s.access.ListPurchases(r.Context(), userID)
	if err != nil {
		s.logFailure(r, err, "list purchases failed")
		writeError(w, err)
		return
	}
	now := s.now()
	out := make([]purchaseView, 0, len(list))
	for _, p := range list {
		out = append(out, purchaseView{
			ID:           p.ID,
			ProductSlug:  p.ProductSlug,
			PurchaseType: p.PurchaseType,
			CreatedAt:    p.CreatedAt,
			ExpiresAt:    p.ExpiresAt,
			Active:       p.Active(now),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type adjustRequest struct {
	Level        string     `json:"level"`
	CustomExpiry *time.Time `json:"customExpiry,omitempty"`
}

type adjustResponse struct {
	PreviousLevel  string     `json:"previousLevel"`
	NewLevel       string     `json:"newLevel"`
	PreviousExpiry *time.Time `json:"previousExpiry"`
	NewExpiry      *time.Time `json:"newExpiry"`
}

func (s *Server) handleAdjustMember(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req adjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	level, err := model.ParseLevel(req.Level)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.members.Adjust(r.Context(), usecase.AdjustRequest{
		AdminID:      p.UserID,
		UserID:       chi.URLParam(r, "id"),
		Level:        level,
		CustomExpiry: req.CustomExpiry,
	}, s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adjustResponse{
		PreviousLevel:  string(res.PreviousLevel),
		NewLevel:       string(res.NewLevel),
		PreviousExpiry: res.PreviousExpiry,
		NewExpiry:      res.NewExpiry,
	})
}

// ===== products =====

type productView struct {
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	RequiredLevel string `json:"requiredLevel"`
	PriceType     string `json:"priceType"`
	TrialEnabled  bool   `json:"trialEnabled"`
	TrialQuota    int    `json:"trialQuota,omitempty"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, productView{
			Slug:          p.Slug,
			Name:          p.Name,
			RequiredLevel: string(p.RequiredLevel),
			PriceType:     string(p.PriceType),
			TrialEnabled:  p.TrialEnabled,
			TrialQuota:    p.TrialQuota,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type decisionView struct {
	HasAccess      bool       `json:"hasAccess"`
	AccessType     string     `json:"accessType"`
	ProductSlug    string     `json:"productSlug"`
	CurrentLevel   string     `json:"currentLevel"`
	RequiredLevel  string     `json:"requiredLevel"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	TrialRemaining *int       `json:"trialRemaining,omitempty"`
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	d, err := s.access.Resolve(r.Context(), p.UserID, chi.URLParam(r, "slug"), s.now())
	if err != nil {
		s.logFailure(r, err, "resolve access failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionView{
		HasAccess:      d.HasAccess,
		AccessType:     string(d.AccessType),
		ProductSlug:    d.ProductSlug,
		CurrentLevel:   string(d.CurrentLevel),
		RequiredLevel:  string(d.RequiredLevel),
		ExpiresAt:      d.ExpiresAt,
		TrialRemaining: d.TrialRemaining,
	})
}

func (s *Server) handleConsumeTrial(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	remaining, err := s.trials.Consume(r.Context(), p.UserID, chi.URLParam(r, "slug"), s.now(), clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": remaining})
}

type trialStatusView struct {
	ProductSlug   string     `json:"productSlug"`
	Remaining     int        `json:"remaining"`
	InSession     bool       `json:"inSession"`
	SessionEndsAt *time.Time `json:"sessionEndsAt,omitempty"`
}

func (s *Server) handleTrialStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	st, err := s.trials.Status(r.Context(), p.UserID, chi.URLParam(r, "slug"), s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trialStatusView{
		ProductSlug:   st.ProductSlug,
		Remaining:     st.Remaining,
		InSession:     st.InSession,
		SessionEndsAt: st.SessionEndsAt,
	})
}

func (s *Server) handleResetTrial(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := s.trials.Reset(r.Context(), p.UserID, chi.URLParam(r, "id"), chi.URLParam(r, "slug"), s.now()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== attempts =====
//
// The identity service calls these around its own login and register flows.

type attemptView struct {
	Allowed      bool       `json:"allowed"`
	Failures     int        `json:"failures"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
}

func parseAction(raw string) (usecase.Action, error) {
	a := usecase.Action(raw)
	switch a {
	case usecase.ActionLogin, usecase.ActionRegister, usecase.ActionActivate, usecase.ActionGenerate:
		return a, nil
	}
	return "", domain.ErrInvalidArgument
}

func (s *Server) handleCheckAttempt(w http.ResponseWriter, r *http.Request) {
	action, err := parseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, err)
		return
	}
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	res := s.limiter.Check(r.Context(), identity, action, s.now())
	writeJSON(w, http.StatusOK, attemptView{Allowed: res.Allowed, Failures: res.Failures, BlockedUntil: res.BlockedUntil})
}

type recordAttemptRequest struct {
	Identity string `json:"identity"`
	Success  bool   `json:"success"`
}

func (s *Server) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	action, err := parseAction(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req recordAttemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Identity == "" {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	s.limiter.RecordAttempt(r.Context(), req.Identity, action, req.Success)
	res := s.limiter.Check(r.Context(), req.Identity, action, s.now())
	writeJSON(w, http.StatusOK, attemptView{Allowed: res.Allowed, Failures: res.Failures, BlockedUntil: res.BlockedUntil})
}

func (s *Server) logFailure(r *http.Request, err error, msg string) {
	if statusFor(err) < http.StatusInternalServerError {
		return
	}
	l := logging.With(r.Context(), s.log)
	l.Error().Err(err).Msg(msg)
}
