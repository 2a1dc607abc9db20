package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitestock/internal/model"
	"sitestock/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type SubmitRequestDTO struct {
	Section       string          `json:"section" binding:"required,oneof=materials labour"`
	ItemID        string          `json:"item_id" binding:"required"`
	Qty           decimal.Decimal `json:"qty" binding:"required"`
	Note          string          `json:"note"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
}

type RequestResponse struct {
	ID            string          `json:"id"`
	Section       string          `json:"section"`
	ItemID        string          `json:"item_id"`
	ItemName      string          `json:"item_name"`
	Qty           decimal.Decimal `json:"qty"`
	RequestedBy   string          `json:"requested_by"`
	Note          string          `json:"note"`
	Status        string          `json:"status"`
	ApprovedBy    *string         `json:"approved_by"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	ProjectSite   string          `json:"project_site"`
	CreatedAt     string          `json:"created_at"`
}

// TransitionResult reports the durable outcome plus any best-effort follow-up
// that failed after the status was committed.
type TransitionResult struct {
	Request  RequestResponse `json:"request"`
	NoOp     bool            `json:"no_op,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

type DeleteRequestResult struct {
	ActualsDeleted       int64 `json:"actuals_deleted"`
	NotificationsDeleted int64 `json:"notifications_deleted"`
}

// RequestService is the request state machine: the only writer of
// Request.status. Transitions synchronize the actuals ledger inside the same
// transaction and fan notifications out after commit.
type RequestService interface {
	Submit(ctx context.Context, dto SubmitRequestDTO, actorID string) (*TransitionResult, error)
	Transition(ctx context.Context, id, targetStatus, actorID string) (*TransitionResult, error)
	Delete(ctx context.Context, id, actorID string) (*DeleteRequestResult, error)
	GetByID(ctx context.Context, id string) (*RequestResponse, error)
	List(ctx context.Context, filter repository.RequestFilter) ([]RequestResponse, int64, error)
}

type requestService struct {
	requests      repository.RequestRepository
	items         repository.ItemRepository
	users         repository.UserRepository
	audits        repository.AuditRepository
	notifications NotificationService
	actuals       ActualsService
	txManager     repository.TransactionManager
	logger        *zap.Logger
}

func NewRequestService(
	requests repository.RequestRepository,
	items repository.ItemRepository,
	users repository.UserRepository,
	audits repository.AuditRepository,
	notifications NotificationService,
	actuals ActualsService,
	txManager repository.TransactionManager,
	logger *zap.Logger,
) RequestService {
	return &requestService{
		requests:      requests,
		items:         items,
		users:         users,
		audits:        audits,
		notifications: notifications,
		actuals:       actuals,
		txManager:     txManager,
		logger:        logger,
	}
}

// --- Implementation ---

func (s *requestService) Submit(ctx context.Context, dto SubmitRequestDTO, actorID string) (*TransitionResult, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if dto.Section != model.CategoryMaterials && dto.Section != model.CategoryLabour {
		return nil, fmt.Errorf("%w: section must be materials or labour", ErrValidation)
	}
	if !dto.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: qty must be positive", ErrValidation)
	}
	if dto.PriceSnapshot.IsNegative() {
		return nil, fmt.Errorf("%w: price_snapshot cannot be negative", ErrValidation)
	}

	itemID, err := uuid.Parse(dto.ItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid item id", ErrValidation)
	}
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		return nil, fmt.Errorf("failed to look up item: %w", err)
	}

	request := &model.Request{
		Section:       dto.Section,
		ItemID:        item.ID,
		Qty:           dto.Qty,
		RequestedBy:   actor.Username,
		Note:          dto.Note,
		Status:        model.RequestStatusPending,
		PriceSnapshot: dto.PriceSnapshot,
		ProjectSite:   actor.ProjectSite,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.requests.Create(txCtx, request); createErr != nil {
			return fmt.Errorf("failed to create request: %w", createErr)
		}
		return s.writeAudit(txCtx, &actor.ID, model.ActionSubmitRequest, request.ID.String(), item.Name, map[string]interface{}{
			"section": dto.Section,
			"qty":     dto.Qty.String(),
			"item":    item.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	warnings := s.notifySubmitted(ctx, request, actor, item.Name)

	request.Item = item
	return &TransitionResult{Request: toRequestResponse(*request), Warnings: warnings}, nil
}

func (s *requestService) Transition(ctx context.Context, id, targetStatus, actorID string) (*TransitionResult, error) {
	if !model.ValidRequestStatus(targetStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, targetStatus)
	}

	requestID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}

	request, err := s.requests.FindByIDWithItem(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to look up request: %w", err)
	}

	// Re-applying the current status is a no-op with no side effects.
	if request.Status == targetStatus {
		return &TransitionResult{Request: toRequestResponse(*request), NoOp: true}, nil
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	previousStatus := request.Status
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rows, updateErr := s.requests.UpdateStatus(txCtx, requestID, previousStatus, targetStatus, actor.Username)
		if updateErr != nil {
			return fmt.Errorf("failed to update request status: %w", updateErr)
		}
		if rows == 0 {
			return fmt.Errorf("%w: request %s changed concurrently", ErrConflict, requestID)
		}

		if targetStatus == model.RequestStatusApproved {
			if ensureErr := s.actuals.Ensure(txCtx, request, actor.Username); ensureErr != nil {
				return ensureErr
			}
		}
		if previousStatus == model.RequestStatusApproved && targetStatus != model.RequestStatusApproved {
			if _, removeErr := s.actuals.Remove(txCtx, requestID); removeErr != nil {
				return removeErr
			}
		}

		return s.writeAudit(txCtx, &actor.ID, transitionAction(targetStatus), requestID.String(), itemName(request), map[string]interface{}{
			"from":         previousStatus,
			"to":           targetStatus,
			"requested_by": request.RequestedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	request.Status = targetStatus
	request.ApprovedBy = &actor.Username

	warnings := s.notifyTransition(ctx, request, actor)

	return &TransitionResult{Request: toRequestResponse(*request), Warnings: warnings}, nil
}

func (s *requestService) Delete(ctx context.Context, id, actorID string) (*DeleteRequestResult, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}

	request, err := s.requests.FindByIDWithItem(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to look up request: %w", err)
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	result := &DeleteRequestResult{}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		actualsDeleted, removeErr := s.actuals.Remove(txCtx, requestID)
		if removeErr != nil {
			return removeErr
		}
		result.ActualsDeleted = actualsDeleted

		notifsDeleted, notifErr := s.notifications.DeleteByRelatedRequest(txCtx, requestID)
		if notifErr != nil {
			return fmt.Errorf("failed to delete notifications for request %s: %w", requestID, notifErr)
		}
		result.NotificationsDeleted = notifsDeleted

		if deleteErr := s.requests.Delete(txCtx, requestID); deleteErr != nil {
			return fmt.Errorf("failed to delete request: %w", deleteErr)
		}

		return s.writeAudit(txCtx, &actor.ID, model.ActionDeleteRequest, requestID.String(), itemName(request), map[string]interface{}{
			"qty":          request.Qty.String(),
			"requested_by": request.RequestedBy,
			"status":       request.Status,
			"deleted_by":   actor.Username,
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *requestService) GetByID(ctx context.Context, id string) (*RequestResponse, error) {
	requestID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}
	request, err := s.requests.FindByIDWithItem(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to look up request: %w", err)
	}
	resp := toRequestResponse(*request)
	return &resp, nil
}

func (s *requestService) List(ctx context.Context, filter repository.RequestFilter) ([]RequestResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch requests: %w", err)
	}

	result := make([]RequestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, toRequestResponse(r))
	}
	return result, total, nil
}

// --- Notification fan-out (best-effort, post-commit) ---

func (s *requestService) notifySubmitted(ctx context.Context, request *model.Request, actor *model.User, item string) []string {
	var warnings []string

	if _, err := s.notifications.Create(ctx, CreateNotificationDTO{
		SenderID:         &actor.ID,
		Message:          fmt.Sprintf("New request from %s: %s x %s", actor.Username, request.Qty, item),
		Type:             model.NotifTypeNewRequest,
		EventKey:         fmt.Sprintf("request:%s:submitted", request.ID),
		RelatedRequestID: &request.ID,
	}); err != nil {
		s.logger.Warn("admin notification for submitted request failed",
			zap.String("request_id", request.ID.String()), zap.Error(err))
		warnings = append(warnings, "request created, but admin notification failed")
	}

	if _, err := s.notifications.Create(ctx, CreateNotificationDTO{
		ReceiverID:       &actor.ID,
		Message:          fmt.Sprintf("Your request for %s has been submitted for approval.", item),
		Type:             model.NotifTypeInfo,
		EventKey:         fmt.Sprintf("request:%s:submitted:ack", request.ID),
		RelatedRequestID: &request.ID,
	}); err != nil {
		s.logger.Warn("requester confirmation failed",
			zap.String("request_id", request.ID.String()), zap.Error(err))
		warnings = append(warnings, "request created, but confirmation notification failed")
	}

	return warnings
}

func (s *requestService) notifyTransition(ctx context.Context, request *model.Request, actor *model.User) []string {
	var warnings []string
	statusWord := strings.ToLower(request.Status)
	item := itemName(request)

	if request.Status == model.RequestStatusApproved || request.Status == model.RequestStatusRejected {
		notifType := model.NotifTypeRequestApproved
		message := fmt.Sprintf("Your request for %s has been approved!", item)
		if request.Status == model.RequestStatusRejected {
			notifType = model.NotifTypeRequestRejected
			message = fmt.Sprintf("Your request for %s has been rejected", item)
		}

		requester, err := resolveUserByName(ctx, s.users, request.RequestedBy)
		if err != nil {
			s.logger.Warn("could not resolve requester for direct notification",
				zap.String("requested_by", request.RequestedBy), zap.Error(err))
			warnings = append(warnings, "status updated, but notification to requester failed")
		} else {
			if _, err := s.notifications.Create(ctx, CreateNotificationDTO{
				SenderID:         &actor.ID,
				ReceiverID:       &requester.ID,
				Message:          message,
				Type:             notifType,
				EventKey:         fmt.Sprintf("request:%s:%s", request.ID, statusWord),
				RelatedRequestID: &request.ID,
			}); err != nil {
				s.logger.Warn("direct transition notification failed",
					zap.String("request_id", request.ID.String()), zap.Error(err))
				warnings = append(warnings, "status updated, but notification to requester failed")
			}
		}

		excluded := actor.ID
		if requester != nil {
			excluded = requester.ID
		}
		if _, err := s.notifications.NotifyProjectPeers(ctx,
			request.ProjectSite,
			excluded,
			fmt.Sprintf("Request for %s at %s was %s", item, request.ProjectSite, statusWord),
			model.NotifTypeInfo,
			fmt.Sprintf("request:%s:%s:peer", request.ID, statusWord),
			&request.ID,
		); err != nil {
			s.logger.Warn("project peer fan-out failed",
				zap.String("request_id", request.ID.String()), zap.Error(err))
			warnings = append(warnings, "status updated, but notification to peers failed")
		}
	}

	if _, err := s.notifications.Create(ctx, CreateNotificationDTO{
		SenderID:         &actor.ID,
		Message:          fmt.Sprintf("%s marked request from %s for %s as %s", actor.Username, request.RequestedBy, item, statusWord),
		Type:             model.NotifTypeInfo,
		EventKey:         fmt.Sprintf("request:%s:%s:admins", request.ID, statusWord),
		RelatedRequestID: &request.ID,
	}); err != nil {
		s.logger.Warn("admin audit notification failed",
			zap.String("request_id", request.ID.String()), zap.Error(err))
		warnings = append(warnings, "status updated, but admin notification failed")
	}

	return warnings
}

// --- Helpers ---

func (s *requestService) resolveActor(ctx context.Context, actorID string) (*model.User, error) {
	id, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid actor id", ErrValidation)
	}
	actor, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to look up actor: %w", err)
	}
	return actor, nil
}

func (s *requestService) writeAudit(ctx context.Context, userID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func transitionAction(targetStatus string) string {
	switch targetStatus {
	case model.RequestStatusApproved:
		return model.ActionApproveRequest
	case model.RequestStatusRejected:
		return model.ActionRejectRequest
	default:
		return model.ActionRevertRequest
	}
}

func itemName(r *model.Request) string {
	if r.Item != nil {
		return r.Item.Name
	}
	return r.ItemID.String()
}

func toRequestResponse(r model.Request) RequestResponse {
	resp := RequestResponse{
		ID:            r.ID.String(),
		Section:       r.Section,
		ItemID:        r.ItemID.String(),
		Qty:           r.Qty,
		RequestedBy:   r.RequestedBy,
		Note:          r.Note,
		Status:        r.Status,
		ApprovedBy:    r.ApprovedBy,
		PriceSnapshot: r.PriceSnapshot,
		ProjectSite:   r.ProjectSite,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if r.Item != nil {
		resp.ItemName = r.Item.Name
	}
	return resp
}
