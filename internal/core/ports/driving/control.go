package driving

import (
	"context"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// RequestType names a control surface request
type RequestType string

const (
	RequestSyncAll            RequestType = "SYNC_ALL"
	RequestSyncProvider       RequestType = "SYNC_PROVIDER"
	RequestGetSyncStatus      RequestType = "GET_SYNC_STATUS"
	RequestUpdateSyncInterval RequestType = "UPDATE_SYNC_INTERVAL"
	RequestGetProviderStatus  RequestType = "GET_PROVIDER_STATUS"
	RequestAuthenticate       RequestType = "AUTHENTICATE"
	RequestDisconnect         RequestType = "DISCONNECT"
	RequestSetProviderConfig  RequestType = "SET_PROVIDER_CONFIG"
)

// Request is one control surface message
type Request struct {
	Type       RequestType         `json:"type"`
	ProviderID string              `json:"providerId,omitempty"`
	Interval   int64               `json:"interval,omitempty"`
	Config     *domain.ConfigPatch `json:"config,omitempty"`
}

// Response is the single reply to a Request. Failures are always
// {success:false, error:"..."}.
type Response struct {
	Success   bool                     `json:"success"`
	Error     string                   `json:"error,omitempty"`
	Status    *domain.SchedulerStatus  `json:"status,omitempty"`
	Sweep     *domain.SweepResult      `json:"sweep,omitempty"`
	Result    *domain.SyncResult       `json:"result,omitempty"`
	Providers []*domain.ProviderStatus `json:"providers,omitempty"`
	Auth      *domain.AuthResult       `json:"auth,omitempty"`
	Config    *domain.ProviderConfig   `json:"config,omitempty"`
}

// Controller answers control surface requests
type Controller interface {
	Handle(ctx context.Context, req Request) Response
}
