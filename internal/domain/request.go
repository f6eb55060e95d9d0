package domain

import "time"

// DeletionRequestStatus tracks a client-submitted deletion request document.
type DeletionRequestStatus string

const (
	RequestPending   DeletionRequestStatus = "pending"
	RequestQueued    DeletionRequestStatus = "queued"
	RequestCompleted DeletionRequestStatus = "completed"
	RequestFailed    DeletionRequestStatus = "failed"
)

// DeletionRequest is a document written by the client asking for account erasure.
type DeletionRequest struct {
	ID              string
	UserID          UserID
	ProfilePhotoRef string
	Status          DeletionRequestStatus
	RequestedAt     time.Time
}

// Request document fields.
const (
	RequestFieldUserID      = "userId"
	RequestFieldPhotoRef    = "profilePhotoURL"
	RequestFieldStatus      = "status"
	RequestFieldRequestedAt = "requestedAt"
	RequestFieldRunID       = "runId"
	RequestFieldUpdatedAt   = "updatedAt"
)

// DeletionRequestFromDocument maps a request document. ok is false when the user id is missing.
func DeletionRequestFromDocument(doc Document) (DeletionRequest, bool) {
	uid, err := ParseUserID(doc.String(RequestFieldUserID))
	if err != nil {
		return DeletionRequest{}, false
	}
	req := DeletionRequest{
		ID:              doc.Ref.ID,
		UserID:          uid,
		ProfilePhotoRef: doc.String(RequestFieldPhotoRef),
		Status:          DeletionRequestStatus(doc.String(RequestFieldStatus)),
	}
	if t, ok := doc.Data[RequestFieldRequestedAt].(time.Time); ok {
		req.RequestedAt = t
	}
	return req, true
}
