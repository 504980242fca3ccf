package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tollgate-labs/tollgate/server/internal/authn"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/service"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

type Dependencies struct {
	Logger  *slog.Logger
	Addr    string
	Service *service.ComplianceService

	// JWTSecret enables HS256 bearer tokens. AllowCallerHeader accepts
	// X-Caller-Address and must only be set in dev.
	JWTSecret         string
	AllowCallerHeader bool

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	svc        *service.ComplianceService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		logger: d.Logger,
		mux:    mux,
		svc:    d.Service,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /v1/assets", s.handleListAssets)
	mux.HandleFunc("POST /v1/assets", s.handleCreateAsset)
	mux.HandleFunc("GET /v1/assets/{asset}", s.handleGetAsset)
	mux.HandleFunc("POST /v1/assets/{asset}/identities", s.handleRegisterUsers)
	mux.HandleFunc("GET /v1/assets/{asset}/identities/count", s.handleTotalUsers)
	mux.HandleFunc("POST /v1/assets/{asset}/mint", s.ledgerHandler(s.svc.Mint))
	mux.HandleFunc("POST /v1/assets/{asset}/transfer", s.ledgerHandler(s.svc.Transfer))
	mux.HandleFunc("POST /v1/assets/{asset}/burn", s.ledgerHandler(s.svc.Burn))
	mux.HandleFunc("GET /v1/assets/{asset}/balances/{party}", s.handleBalance)

	mux.HandleFunc("POST /v1/compliance/{registry}/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/compliance/{registry}/relay", s.handleRelay)
	mux.HandleFunc("GET /v1/compliance/{registry}/modules", s.handleModules)
	mux.HandleFunc("POST /v1/compliance/{registry}/modules", s.handleBind)
	mux.HandleFunc("DELETE /v1/compliance/{registry}/modules/{module}", s.handleUnbind)

	var handler http.Handler = mux
	handler = callerAuth{verifier: authn.Verifier{Secret: []byte(d.JWTSecret), AllowAddressHeader: d.AllowCallerHeader}}.middleware(handler)
	if d.RateLimit > 0 {
		handler = newIPRateLimiter(rate.Limit(d.RateLimit), max(d.RateBurst, 1)).middleware(handler)
	}
	handler = loggingMiddleware(d.Logger, handler)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid_address", name+" is not an address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// caller returns the authenticated caller or writes 401.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	a, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller address required")
		return common.Address{}, false
	}
	return a, true
}

// ── Assets ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListAssets(r.Context())
	if err != nil {
		writeServiceError(w, s.logger, "list_assets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": list})
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.CreateAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := s.svc.CreateAsset(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, s.logger, "create_asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	b, err := s.svc.GetAsset(r.Context(), asset)
	if err != nil {
		writeServiceError(w, s.logger, "get_asset", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRegisterUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	asset, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	var req types.RegisterUsersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.svc.RegisterUsers(r.Context(), caller, asset, req)
	if err != nil {
		writeServiceError(w, s.logger, "register_users", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTotalUsers(w http.ResponseWriter, r *http.Request) {
	asset, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	resp, err := s.svc.TotalUsers(r.Context(), asset)
	if err != nil {
		writeServiceError(w, s.logger, "total_users", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type ledgerOp func(ctx context.Context, caller, asset common.Address, req types.LedgerRequest) (types.LedgerResponse, error)

func (s *Server) ledgerHandler(op ledgerOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := s.caller(w, r)
		if !ok {
			return
		}
		asset, ok := pathAddress(w, r, "asset")
		if !ok {
			return
		}
		var req types.LedgerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := op(r.Context(), caller, asset, req)
		if err != nil {
			writeServiceError(w, s.logger, "ledger", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	asset, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	party, ok := pathAddress(w, r, "party")
	if !ok {
		return
	}
	resp, err := s.svc.Balance(r.Context(), asset, party)
	if err != nil {
		writeServiceError(w, s.logger, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Compliance ───────────────────────────────────────────────────────────────

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	registry, ok := pathAddress(w, r, "registry")
	if !ok {
		return
	}

	useProto := isProtobuf(r)
	var req types.EvaluateRequest
	if useProto {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		var err error
		if req, err = service.EvaluateRequestFromStruct(&msg); err != nil {
			writeServiceError(w, s.logger, "evaluate", err)
			return
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.svc.Evaluate(r.Context(), caller, registry, req)
	if err != nil {
		writeServiceError(w, s.logger, "evaluate", err)
		return
	}

	if useProto {
		msg, err := service.EvaluateResponseToStruct(resp)
		if err != nil {
			writeServiceError(w, s.logger, "evaluate", err)
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	registry, ok := pathAddress(w, r, "registry")
	if !ok {
		return
	}

	useProto := isProtobuf(r)
	var req types.RelayRequest
	if useProto {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		var err error
		if req, err = service.RelayRequestFromStruct(&msg); err != nil {
			writeServiceError(w, s.logger, "relay", err)
			return
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.svc.Relay(r.Context(), caller, registry, req)
	if err != nil {
		writeServiceError(w, s.logger, "relay", err)
		return
	}

	if useProto {
		msg, err := service.RelayResponseToStruct(resp)
		if err != nil {
			writeServiceError(w, s.logger, "relay", err)
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	registry, ok := pathAddress(w, r, "registry")
	if !ok {
		return
	}
	resp, err := s.svc.Modules(r.Context(), registry)
	if err != nil {
		writeServiceError(w, s.logger, "modules", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	registry, ok := pathAddress(w, r, "registry")
	if !ok {
		return
	}
	var req types.BindRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.svc.BindModule(r.Context(), caller, registry, req.Module)
	if err != nil {
		writeServiceError(w, s.logger, "bind", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	registry, ok := pathAddress(w, r, "registry")
	if !ok {
		return
	}
	module, ok := pathAddress(w, r, "module")
	if !ok {
		return
	}
	resp, err := s.svc.UnbindModule(r.Context(), caller, registry, module)
	if err != nil {
		writeServiceError(w, s.logger, "unbind", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
