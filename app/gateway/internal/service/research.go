package service

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/collab"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/engine"
	"github.com/iWorld-y/deep_research/app/deep_research/pkg/persona"
)

// Researcher 单角色研究
type Researcher interface {
	Research(ctx context.Context, query string, opts engine.RunOptions) *engine.Result
}

// Collaborator 多角色协作研究
type Collaborator interface {
	Run(ctx context.Context, query string, personaIDs []string, mode collab.Mode) (*collab.Session, error)
}

type ResearchRequest struct {
	Query        string `json:"query"`
	SubQuestions int    `json:"sub_questions"`
	Persona      string `json:"persona"`
}

type CollaborateRequest struct {
	Query    string   `json:"query"`
	Personas []string `json:"personas"`
	Mode     string   `json:"mode"`
}

type PersonasReply struct {
	Personas []persona.Persona `json:"personas"`
}

type ResearchService struct {
	researcher Researcher
	collab     Collaborator
	personas   *persona.Registry
	log        *log.Helper
}

func NewResearchService(r Researcher, c Collaborator, personas *persona.Registry, logger log.Logger) *ResearchService {
	if personas == nil {
		personas = persona.Default()
	}
	return &ResearchService{
		researcher: r,
		collab:     c,
		personas:   personas,
		log:        log.NewHelper(logger),
	}
}

// Research POST /v1/research。流水线失败返回 200 和 success=false
func (s *ResearchService) Research(ctx http.Context) error {
	var req ResearchRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_BODY", err.Error())
	}
	h := ctx.Middleware(func(c context.Context, in interface{}) (interface{}, error) {
		return s.research(c, in.(*ResearchRequest))
	})
	out, err := h(ctx, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(nethttp.StatusOK, out)
}

func (s *ResearchService) research(ctx context.Context, req *ResearchRequest) (*engine.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, kerrors.BadRequest("EMPTY_QUERY", engine.ErrNoQuery.Error())
	}
	if req.Persona != "" {
		if _, ok := s.personas.Get(req.Persona); !ok {
			return nil, kerrors.BadRequest("UNKNOWN_PERSONA", "unknown persona: "+req.Persona)
		}
	}

	res := s.researcher.Research(ctx, req.Query, engine.RunOptions{
		SubQuestions: req.SubQuestions,
		Persona:      req.Persona,
	})
	if !res.Success {
		s.log.WithContext(ctx).Errorf("research failed in %s phase: %s", res.Phase, res.Error)
	}
	return res, nil
}

// Collaborate POST /v1/collaborate
func (s *ResearchService) Collaborate(ctx http.Context) error {
	var req CollaborateRequest
	if err := ctx.Bind(&req); err != nil {
		return kerrors.BadRequest("INVALID_BODY", err.Error())
	}
	h := ctx.Middleware(func(c context.Context, in interface{}) (interface{}, error) {
		return s.collaborate(c, in.(*CollaborateRequest))
	})
	out, err := h(ctx, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(nethttp.StatusOK, out)
}

func (s *ResearchService) collaborate(ctx context.Context, req *CollaborateRequest) (*collab.Session, error) {
	session, err := s.collab.Run(ctx, req.Query, req.Personas, collab.Mode(req.Mode))
	switch {
	case errors.Is(err, engine.ErrNoQuery):
		return nil, kerrors.BadRequest("EMPTY_QUERY", err.Error())
	case errors.Is(err, persona.ErrUnknownPersona):
		return nil, kerrors.BadRequest("UNKNOWN_PERSONA", err.Error())
	case errors.Is(err, collab.ErrNoPersonas), errors.Is(err, collab.ErrUnknownMode):
		return nil, kerrors.BadRequest("INVALID_ARGUMENT", err.Error())
	case err != nil:
		return nil, kerrors.InternalServer("COLLABORATION_ERROR", err.Error())
	}
	return session, nil
}

// Personas GET /v1/personas
func (s *ResearchService) Personas(ctx http.Context) error {
	return ctx.JSON(nethttp.StatusOK, &PersonasReply{Personas: s.personas.List()})
}
