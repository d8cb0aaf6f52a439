package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/models"
	id "timevault/pkg/domain"
	dErrors "timevault/pkg/domain-errors"
	"timevault/pkg/platform/httputil"
	"timevault/pkg/requestcontext"
)

// Service defines the capsule operations exposed over HTTP.
type Service interface {
	InitializeRegistry(ctx context.Context) (*models.Registry, error)
	GetRegistry(ctx context.Context) (*models.Registry, error)
	CreateCapsule(ctx context.Context, req models.CreateCapsuleRequest) (*models.Capsule, error)
	GetCapsule(ctx context.Context, ref models.CapsuleRef) (*models.Capsule, error)
	UpdateCapsule(ctx context.Context, ref models.CapsuleRef, req models.UpdateCapsuleRequest) (*models.Capsule, error)
	UnlockCapsule(ctx context.Context, ref models.CapsuleRef) (*models.Capsule, error)
	TransferCapsule(ctx context.Context, ref models.CapsuleRef, newOwner id.Identity, mint *id.Identity) (*models.Capsule, error)
	AttachMint(ctx context.Context, ref models.CapsuleRef, mint id.Identity) (*models.Capsule, error)
	CloseCapsule(ctx context.Context, ref models.CapsuleRef) error
}

// Handler serves the /v1 registry and capsule routes. It expects the
// request id, request time and caller identity to be in the context already.
type Handler struct {
	logger  *slog.Logger
	capsule Service
}

func New(capsule Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, capsule: capsule}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registry", h.handleInitializeRegistry)
	r.Get("/registry", h.handleGetRegistry)

	r.Post("/capsules", h.handleCreateCapsule)
	r.Route("/capsules/{address}", func(r chi.Router) {
		r.Get("/", h.handleGetCapsule)
		r.Patch("/", h.handleUpdateCapsule)
		r.Delete("/", h.handleCloseCapsule)
		r.Post("/unlock", h.handleUnlockCapsule)
		r.Post("/transfer", h.handleTransferCapsule)
		r.Post("/mint", h.handleAttachMint)
	})
}

func (h *Handler) handleInitializeRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := h.capsule.InitializeRegistry(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRegistryResponse(reg))
}

func (h *Handler) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := h.capsule.GetRegistry(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistryResponse(reg))
}

func (h *Handler) handleCreateCapsule(w http.ResponseWriter, r *http.Request) {
	var req createCapsuleRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	model, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.capsule.CreateCapsule(r.Context(), model)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/capsules/"+c.Address.String()+"?"+refQuery(c))
	httputil.WriteJSON(w, http.StatusCreated, toCapsuleResponse(c))
}

func (h *Handler) handleGetCapsule(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.capsule.GetCapsule(r.Context(), ref)
	h.writeCapsule(w, c, err)
}

func (h *Handler) handleUpdateCapsule(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateCapsuleRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	model, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.capsule.UpdateCapsule(r.Context(), ref, model)
	h.writeCapsule(w, c, err)
}

func (h *Handler) handleUnlockCapsule(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.capsule.UnlockCapsule(r.Context(), ref)
	h.writeCapsule(w, c, err)
}

func (h *Handler) handleTransferCapsule(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req transferCapsuleRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.capsule.TransferCapsule(r.Context(), ref, req.NewOwner, req.MintAddress)
	h.writeCapsule(w, c, err)
}

func (h *Handler) handleAttachMint(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req attachMintRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.capsule.AttachMint(r.Context(), ref, req.Mint)
	h.writeCapsule(w, c, err)
}

func (h *Handler) handleCloseCapsule(w http.ResponseWriter, r *http.Request) {
	ref, err := parseRef(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.capsule.CloseCapsule(r.Context(), ref); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCapsule(w http.ResponseWriter, c *models.Capsule, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCapsuleResponse(c))
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		ctx := r.Context()
		h.logger.WarnContext(ctx, "invalid capsule request body",
			"path", r.URL.Path,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return err
	}
	return nil
}

// parseRef reads the address from the path and the (creator, id) claim from
// the query string.
func parseRef(r *http.Request) (models.CapsuleRef, error) {
	addr, err := address.Parse(chi.URLParam(r, "address"))
	if err != nil {
		return models.CapsuleRef{}, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	}
	q := r.URL.Query()
	creator, err := id.ParseIdentity(q.Get("creator"))
	if err != nil {
		return models.CapsuleRef{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "creator query parameter: "+dErrors.Message(err))
	}
	seq, err := strconv.ParseUint(q.Get("id"), 10, 64)
	if err != nil {
		return models.CapsuleRef{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "id query parameter must be an unsigned integer")
	}
	return models.CapsuleRef{Address: addr, Creator: creator, ID: seq}, nil
}

func refQuery(c *models.Capsule) string {
	return "creator=" + c.Creator.String() + "&id=" + strconv.FormatUint(c.ID, 10)
}
