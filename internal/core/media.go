package core

import (
	"context"

	"metalcore/pkg/domain"
)

// AttachMediaParams associates an uploaded object key with a domain entity.
// The object bytes are written to the blob store by the caller before the
// association is recorded, so a failed transaction leaves at worst an
// orphaned object, never a dangling reference.
type AttachMediaParams struct {
	OrganizationID string
	EntityType     domain.EntityType
	EntityID       string
	Key            string
	ContentType    string
	Notes          *string
}

// AttachMedia records a media association after checking the target entity
// exists within the organization.
func (s *Service) AttachMedia(ctx context.Context, params AttachMediaParams) (MediaAttachment, Result, error) {
	var created MediaAttachment
	var id string
	res, err := s.run(ctx, "attach_media", &id, func(tx Transaction) error {
		if params.OrganizationID == "" {
			return domain.WrapValidation("organization id required")
		}
		if params.Key == "" {
			return domain.WrapValidation("object key required")
		}
		if err := checkAttachmentTarget(tx, params.OrganizationID, params.EntityType, params.EntityID); err != nil {
			return err
		}
		var err error
		created, err = tx.CreateMediaAttachment(MediaAttachment{
			OrganizationID: params.OrganizationID,
			EntityType:     params.EntityType,
			EntityID:       params.EntityID,
			Key:            params.Key,
			ContentType:    params.ContentType,
			Notes:          params.Notes,
		})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	return created, res, err
}

func checkAttachmentTarget(tx Transaction, organizationID string, entity domain.EntityType, entityID string) error {
	switch entity {
	case domain.EntityPureMetalLot:
		if lot, ok := tx.FindPureMetalLot(entityID); ok && lot.OrganizationID == organizationID {
			return nil
		}
	case domain.EntityChemicalReaction:
		if reaction, ok := tx.FindChemicalReaction(entityID); ok && reaction.OrganizationID == organizationID {
			return nil
		}
	case domain.EntityRecoveryOrder:
		if order, ok := tx.FindRecoveryOrder(entityID); ok && order.OrganizationID == organizationID {
			return nil
		}
	case domain.EntityChemicalAnalysis:
		if analysis, ok := tx.FindChemicalAnalysis(entityID); ok && analysis.OrganizationID == organizationID {
			return nil
		}
	case domain.EntityInventoryLot:
		if lot, ok := tx.FindInventoryLot(entityID); ok && lot.OrganizationID == organizationID {
			return nil
		}
	default:
		return domain.WrapValidation("media attachments not supported for " + string(entity))
	}
	return domain.WrapNotFound(entity, entityID)
}

// DetachMedia removes a media association. Deleting the underlying object is
// the caller's concern.
func (s *Service) DetachMedia(ctx context.Context, attachmentID string) (Result, error) {
	return s.run(ctx, "detach_media", &attachmentID, func(tx Transaction) error {
		return tx.DeleteMediaAttachment(attachmentID)
	})
}

// ListMediaAttachments returns the associations recorded for one entity.
func (s *Service) ListMediaAttachments(ctx context.Context, entity domain.EntityType, entityID string) []MediaAttachment {
	var out []MediaAttachment
	_ = s.store.View(ctx, func(view TransactionView) error {
		for _, m := range view.ListMediaAttachments() {
			if m.EntityType == entity && m.EntityID == entityID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out
}
