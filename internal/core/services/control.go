package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driving"
)

// Ensure Controller implements driving.Controller
var _ driving.Controller = (*Controller)(nil)

// ControllerConfig holds dependencies for Controller.
type ControllerConfig struct {
	Scheduler driving.Scheduler
	Registry  driving.ProviderRegistry
	Logger    *slog.Logger
}

// Controller answers control surface requests. Every failure comes back as
// {success:false, error}; errors never escape Handle.
type Controller struct {
	scheduler driving.Scheduler
	registry  driving.ProviderRegistry
	logger    *slog.Logger
}

// NewController creates a new controller.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		scheduler: cfg.Scheduler,
		registry:  cfg.Registry,
		logger:    logger,
	}
}

// Handle dispatches one request.
func (c *Controller) Handle(ctx context.Context, req driving.Request) driving.Response {
	switch req.Type {
	case driving.RequestSyncAll:
		sweep, err := c.scheduler.SyncAll(ctx)
		if err != nil {
			return c.fail(req, err)
		}
		return driving.Response{Success: true, Sweep: sweep}

	case driving.RequestSyncProvider:
		if req.ProviderID == "" {
			return c.fail(req, fmt.Errorf("%w: providerId is required", domain.ErrInvalidInput))
		}
		if _, err := c.registry.GetProvider(req.ProviderID); err != nil {
			return c.fail(req, err)
		}
		result, err := c.scheduler.SyncProvider(ctx, req.ProviderID)
		if err != nil {
			resp := c.fail(req, err)
			resp.Result = result
			return resp
		}
		return driving.Response{Success: true, Result: result}

	case driving.RequestGetSyncStatus:
		return driving.Response{Success: true, Status: c.scheduler.GetStatus()}

	case driving.RequestUpdateSyncInterval:
		if err := c.scheduler.UpdateInterval(ctx, req.Interval); err != nil {
			return c.fail(req, err)
		}
		return driving.Response{Success: true}

	case driving.RequestGetProviderStatus:
		statuses, err := c.providerStatuses(ctx, req.ProviderID)
		if err != nil {
			return c.fail(req, err)
		}
		return driving.Response{Success: true, Providers: statuses}

	case driving.RequestAuthenticate:
		p, err := c.registry.GetProvider(req.ProviderID)
		if err != nil {
			return c.fail(req, err)
		}
		result := p.Authenticate(ctx)
		if !result.Success {
			if result.Cancelled {
				c.logger.Info("authentication cancelled by user", "provider_id", req.ProviderID)
			} else {
				c.logger.Warn("authentication failed", "provider_id", req.ProviderID, "error", result.Error)
			}
			return driving.Response{Success: false, Error: result.Error, Auth: result}
		}
		return driving.Response{Success: true, Auth: result}

	case driving.RequestDisconnect:
		p, err := c.registry.GetProvider(req.ProviderID)
		if err != nil {
			return c.fail(req, err)
		}
		if err := p.RevokeAuth(ctx); err != nil {
			return c.fail(req, err)
		}
		return driving.Response{Success: true}

	case driving.RequestSetProviderConfig:
		if req.Config == nil {
			return c.fail(req, fmt.Errorf("%w: config is required", domain.ErrInvalidInput))
		}
		p, err := c.registry.GetProvider(req.ProviderID)
		if err != nil {
			return c.fail(req, err)
		}
		cfg, err := p.SetConfig(ctx, *req.Config)
		if err != nil {
			return c.fail(req, err)
		}
		return driving.Response{Success: true, Config: cfg}

	default:
		return c.fail(req, fmt.Errorf("%w: unknown request type %q", domain.ErrInvalidInput, req.Type))
	}
}

func (c *Controller) providerStatuses(ctx context.Context, providerID string) ([]*domain.ProviderStatus, error) {
	if providerID != "" {
		status, err := c.registry.GetProviderStatus(ctx, providerID)
		if err != nil {
			return nil, err
		}
		return []*domain.ProviderStatus{status}, nil
	}

	providers := c.registry.GetAllProviders()
	statuses := make([]*domain.ProviderStatus, 0, len(providers))
	for _, p := range providers {
		status, err := c.registry.GetProviderStatus(ctx, p.Info().ID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// fail converts err into a failure response. Cancelled authentication is
// reported but not logged as an error.
func (c *Controller) fail(req driving.Request, err error) driving.Response {
	var exhausted *domain.RetryExhaustedError
	switch {
	case domain.IsCancelled(err):
		c.logger.Info("request ended by cancelled authentication", "type", req.Type, "provider_id", req.ProviderID)
	case errors.As(err, &exhausted):
		c.logger.Error("request failed terminally", "type", req.Type, "provider_id", req.ProviderID, "error", err)
	default:
		c.logger.Debug("request failed", "type", req.Type, "provider_id", req.ProviderID, "error", err)
	}
	return driving.Response{Success: false, Error: err.Error()}
}
