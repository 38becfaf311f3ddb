package services

import (
	"context"
	"strings"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/types"
)

// GenerateService drafts an estimate from the session's collected inputs. It
// persists nothing: the draft stays with the client until finalization.
type GenerateService interface {
	Generate(ctx context.Context, user types.User, view SessionView, image *NormalizedImage) (*EstimateResponse, error)
}

type generateService struct {
	log *logger.Logger
	ai  AIClient
}

func NewGenerateService(log *logger.Logger, ai AIClient) GenerateService {
	return &generateService{
		log: log.With("service", "GenerateService"),
		ai:  ai,
	}
}

func (gs *generateService) Generate(ctx context.Context, user types.User, view SessionView, image *NormalizedImage) (*EstimateResponse, error) {
	// Validation first: no AI call for incomplete input.
	if strings.TrimSpace(view.Location) == "" {
		return nil, apperr.Validation("specifica il luogo dei lavori")
	}
	if len(view.DescriptionItems) == 0 {
		return nil, apperr.Validation("aggiungi almeno una descrizione dei lavori")
	}

	req := EstimateRequest{
		Description:     strings.Join(view.DescriptionItems, "; "),
		Location:        view.Location,
		ProjectType:     view.ProjectType,
		Region:          view.Region,
		PreferredStores: view.PreferredStores,
	}

	var (
		resp *EstimateResponse
		err  error
	)
	if image != nil && image.Base64 != "" {
		resp, err = gs.ai.GenerateEstimateFromImage(ctx, req, image.Base64, image.MimeType)
	} else {
		resp, err = gs.ai.GenerateEstimate(ctx, req)
	}
	if err != nil {
		return nil, apperr.WithPrefix("generazione fallita", apperr.Upstream("generate_estimate", "il servizio di stima non ha risposto correttamente", err))
	}

	gs.log.Info("Estimate drafted",
		"session_id", view.ID,
		"items", len(resp.Items),
		"sources", len(resp.Sources),
		"with_image", image != nil,
	)
	return resp, nil
}
