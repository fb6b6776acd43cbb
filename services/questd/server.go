package questd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"questvault/crypto"
	"questvault/native/custody"
	"questvault/native/endless"
	"questvault/native/quest"
	"questvault/observability"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Engine    *quest.Engine
	Custodian *custody.Custodian
	// Endless is optional; without it the redeem route answers 501.
	Endless     *endless.Authorizer
	Audit       *AuditSink
	Auth        AuthConfig
	RateLimit   RateLimit
	Logger      *slog.Logger
	ServiceName string
}

// Server exposes one quest engine and its custodian over HTTP.
type Server struct {
	engine    *quest.Engine
	custodian *custody.Custodian
	endless   *endless.Authorizer
	audit     *AuditSink
	auth      *Authenticator
	limiter   *RateLimiter
	logger    *slog.Logger
	service   string
}

func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("questd: engine required")
	}
	if cfg.Custodian == nil {
		cfg.Custodian = cfg.Engine.Custodian()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "questd"
	}
	return &Server{
		engine:    cfg.Engine,
		custodian: cfg.Custodian,
		endless:   cfg.Endless,
		audit:     cfg.Audit,
		auth:      NewAuthenticator(cfg.Auth, cfg.Logger),
		limiter:   NewRateLimiter(cfg.RateLimit, cfg.Logger),
		logger:    cfg.Logger,
		service:   cfg.ServiceName,
	}, nil
}

// Handler builds the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		// Reads are anonymous.
		v1.Group(func(pub chi.Router) {
			pub.Use(s.limiter.Middleware("read"))
			pub.Get("/admin", s.handleRoles)
			pub.Get("/quests", s.handleListQuests)
			pub.Get("/quests/{id}", s.handleGetQuest)
			pub.Get("/quests/{id}/pools/{asset}", s.handleGetPool)
			pub.Get("/quests/{id}/winners", s.handleListWinners)
			pub.Get("/quests/{id}/winners/{participant}", s.handleCheckWinner)
			pub.Get("/custody/engines/{engine}", s.handleGetApproval)
			pub.Get("/audit", s.handleAudit)
		})
		v1.Group(func(priv chi.Router) {
			priv.Use(s.auth.Middleware)
			priv.Use(s.limiter.Middleware("write"))
			priv.Post("/quests", s.handleCreateQuest)
			priv.Post("/quests/{id}/claimable", s.handleSetClaimable)
			priv.Post("/quests/{id}/pools/fund", s.handleFundPool)
			priv.Post("/quests/{id}/pools/overwrite", s.handleOverwritePool)
			priv.Post("/quests/{id}/winners", s.handleSetWinners)
			priv.Post("/quests/{id}/winners/remove", s.handleRemoveWinners)
			priv.Post("/quests/{id}/claim", s.handleClaim)
			priv.Post("/quests/{id}/endless/redeem", s.handleRedeem)
			priv.Post("/custody/engines", s.handleSetApproval)
		})
	})
	return otelhttp.NewHandler(r, s.service)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		observability.HTTP().Observe(route, r.Method, recorder.status, duration)
		s.logger.Debug("http request",
			slog.String("route", route),
			slog.String("method", r.Method),
			slog.Int("status", recorder.status),
			slog.Duration("duration", duration))
	})
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func questID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: quest id %q", errBadRequest, raw)
	}
	return id, nil
}

func caller(r *http.Request) ([20]byte, error) {
	c, ok := CallerFrom(r.Context())
	if !ok {
		return c, errUnauthenticated
	}
	return c, nil
}

// mutation runs a write handler body and answers 200 with body, or the mapped
// error status.
func (s *Server) mutation(w http.ResponseWriter, r *http.Request, fn func(caller [20]byte, id uint64) (interface{}, error)) {
	who, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var id uint64
	if chi.URLParam(r, "id") != "" {
		if id, err = questID(r); err != nil {
			writeError(w, err)
			return
		}
	}
	body, err := fn(who, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if body == nil {
		body = map[string]bool{"ok": true}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateQuest(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, func(who [20]byte, _ uint64) (interface{}, error) {
		var req createQuestRequest
		if err := decode(w, r, &req); err != nil {
			return nil, err
		}
		fungible, err := parseAddresses("fungible", req.Fungible)
		if err != nil {
			return nil, err
		}
		unique, err := parseAddresses("unique", req.Unique)
		if err != nil {
			return nil, err
		}
		hybrid, err := parseAddresses("hybrid", req.Hybrid)
		if err != nil {
			return nil, err
		}
		if err := s.engine.CreateQuest(who, req.ID, fungible, unique, hybrid); err != nil {
			return nil, err
		}
		return s.questBody(req.ID)
	})
}

func (s *Server) handleSetClaimable(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, func(who [20]byte, id uint64) (interface{}, error) {
		var req claimableRequest
		if err := decode(w, r, &req); err != nil {
			return nil, err
		}
		if err := s.engine.SetQuestClaimable(who, id, req.Claimable); err != nil {
			return nil, err
		}
		return s.questBody(id)
	})
}

func (s *Server) poolMutation(w http.ResponseWriter, r *http.Request, apply func(who [20]byte, id uint64, asset [20]byte, amount *big.Int) error) {
	s.mutation(w, r, func(who [20]byte, id uint64) (interface{}, error) {
		var req poolRequest
		if err := decode(w, r, &req); err != nil {
			return nil, err
		}
		asset, err := parseAddress("asset", req.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := parseInteger("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		if err := apply(who, id, asset, amount); err != nil {
			return nil, err
		}
		return s.poolBody(id, asset)
	})
}

func (s *Server) handleFundPool(w http.ResponseWriter, r *http.Request) {
	s.poolMutation(w, r, s.engine.FundFungiblePool)
}

func (s *Server) handleOverwritePool(w http.ResponseWriter, r *http.Request) {
	s.poolMutation(w, r, s.engine.OverwriteFungiblePool)
}

func (s *Server) handleSetWinners(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, func(who [20]byte, id uint64) (interface{}, error) {
		var req winnersRequest
		if err := decode(w, r, &req); err != nil {
			return nil, err
		}
		batch, err := req.batch()
		if err != nil {
			return nil, err
		}
		if err := s.engine.SetWinnerRewards(who, id, batch); err != nil {
			return nil, err
		}
		return map[string]int{"winners": len(batch)}, nil
	})
}

func (s *Server) handleRemoveWinners(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, func(who [20]byte, id uint64) (interface{}, error) {
		var req removeWinnersRequest
		if err := decode(w, r, &req); err != nil {
			return nil, err
		}
		participants, err := parseAddresses("participants", req.Participants)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.RemoveWinners(who, id, participants)
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, func(who [20]byte, id uint64) (interface{}, error) {
		return nil, s.engine.ClaimReward(who, id)
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, func(who [20]byte, id uint64) (interface{}, error) {
		if s.endless == nil {
			return nil, errNotImplemented
		}
		var req redeemRequest
		if err := decode(w, r, &req); err != nil {
			return nil, err
		}
		sig, err := hexutil.Decode(req.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: signature: %v", errBadRequest, err)
		}
		return nil, s.endless.Redeem(who, endless.Request{QuestID: id, Participant: who, Signature: sig})
	})
}

func (s *Server) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	s.mutation(w, r, func(who [20]byte, _ uint64) (interface{}, error) {
		var req approvalRequest
		if err := decode(w, r, &req); err != nil {
			return nil, err
		}
		engine, err := parseAddress("engine", req.Engine)
		if err != nil {
			return nil, err
		}
		if err := s.custodian.SetEngineApproval(who, engine, req.Approved); err != nil {
			return nil, err
		}
		return approvalResponse{Engine: crypto.Format(engine), Approved: req.Approved}, nil
	})
}

func (s *Server) questBody(id uint64) (interface{}, error) {
	data, err := s.engine.GetQuestData(id)
	if err != nil {
		return nil, err
	}
	q := data.Quest
	resp := questResponse{
		ID:        q.ID,
		Fungible:  formatAddresses(q.FungibleAssets),
		Unique:    formatAddresses(q.UniqueAssets),
		Hybrid:    formatAddresses(q.HybridAssets),
		Claimable: q.Claimable,
		CreatedAt: q.CreatedAt,
		Pools:     make([]fungibleJSON, 0, len(data.Pools)),
	}
	for _, pool := range data.Pools {
		resp.Pools = append(resp.Pools, fungibleJSON{Asset: crypto.Format(pool.Asset), Amount: pool.Remaining.String()})
	}
	return resp, nil
}

func (s *Server) poolBody(id uint64, asset [20]byte) (interface{}, error) {
	pool, err := s.engine.PoolAccounting(id, asset)
	if err != nil {
		return nil, err
	}
	return poolResponse{
		Asset:     crypto.Format(asset),
		Remaining: pool.Remaining.String(),
		Funded:    pool.Funded.String(),
		Allocated: pool.Allocated.String(),
		Claimed:   pool.Claimed.String(),
		Stranded:  pool.Stranded.String(),
	}, nil
}

func (s *Server) read(w http.ResponseWriter, fn func() (interface{}, error)) {
	body, err := fn()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		id, err := questID(r)
		if err != nil {
			return nil, err
		}
		return s.questBody(id)
	})
}

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		ids, err := s.engine.ListQuests()
		if err != nil {
			return nil, err
		}
		return map[string][]uint64{"quests": ids}, nil
	})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		id, err := questID(r)
		if err != nil {
			return nil, err
		}
		asset, err := parseAddress("asset", chi.URLParam(r, "asset"))
		if err != nil {
			return nil, err
		}
		return s.poolBody(id, asset)
	})
}

func (s *Server) handleListWinners(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		id, err := questID(r)
		if err != nil {
			return nil, err
		}
		winners, err := s.engine.ListWinners(id)
		if err != nil {
			return nil, err
		}
		return map[string][]string{"winners": formatAddresses(winners)}, nil
	})
}

func (s *Server) handleCheckWinner(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		id, err := questID(r)
		if err != nil {
			return nil, err
		}
		participant, err := parseAddress("participant", chi.URLParam(r, "participant"))
		if err != nil {
			return nil, err
		}
		alloc, err := s.engine.CheckWinner(id, participant)
		if err != nil {
			return nil, err
		}
		return newWinnerResponse(alloc), nil
	})
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		engine, err := parseAddress("engine", chi.URLParam(r, "engine"))
		if err != nil {
			return nil, err
		}
		approved, err := s.custodian.IsEngineApproved(engine)
		if err != nil {
			return nil, err
		}
		return approvalResponse{Engine: crypto.Format(engine), Approved: approved}, nil
	})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		resp := rolesResponse{Engine: crypto.Format(s.engine.Address())}
		owner, ok, err := s.engine.Owner()
		if err != nil {
			return nil, err
		}
		if ok {
			resp.Owner = crypto.Format(owner)
		}
		admin, ok, err := s.engine.Admin()
		if err != nil {
			return nil, err
		}
		if ok {
			resp.Admin = crypto.Format(admin)
		}
		return resp, nil
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	s.read(w, func() (interface{}, error) {
		if s.audit == nil {
			return nil, errNotImplemented
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: limit %q", errBadRequest, raw)
			}
			limit = parsed
		}
		records, err := s.audit.Recent(r.URL.Query().Get("type"), limit)
		if err != nil {
			return nil, err
		}
		out := make([]auditResponse, 0, len(records))
		for _, rec := range records {
			attrs := map[string]string{}
			if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("audit record %s: decode attributes: %w", rec.ID, err)
			}
			out = append(out, auditResponse{
				ID:         rec.ID.String(),
				Type:       rec.Type,
				Attributes: attrs,
				Digest:     rec.Digest,
				CreatedAt:  rec.CreatedAt,
			})
		}
		return map[string][]auditResponse{"records": out}, nil
	})
}
