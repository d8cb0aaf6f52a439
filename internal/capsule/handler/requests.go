package handler

import (
	"timevault/internal/capsule/models"
	id "timevault/pkg/domain"
)

// Dates on the wire are unix seconds within [models.MinUnixDate, models.MaxUnixDate].

type createCapsuleRequest struct {
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	UnlockDate   int64   `json:"unlock_date"`
	EncryptedURL *string `json:"encrypted_url,omitempty"`
}

func (r createCapsuleRequest) toModel() (models.CreateCapsuleRequest, error) {
	unlock, err := models.UnixDate(r.UnlockDate)
	if err != nil {
		return models.CreateCapsuleRequest{}, err
	}
	return models.CreateCapsuleRequest{
		Title:        r.Title,
		Content:      r.Content,
		UnlockDate:   unlock,
		EncryptedURL: r.EncryptedURL,
	}, nil
}

type updateCapsuleRequest struct {
	Content            *string `json:"content,omitempty"`
	UnlockDate         *int64  `json:"unlock_date,omitempty"`
	EncryptedURL       *string `json:"encrypted_url,omitempty"`
	RemoveEncryptedURL bool    `json:"remove_encrypted_url,omitempty"`
}

func (r updateCapsuleRequest) toModel() (models.UpdateCapsuleRequest, error) {
	req := models.UpdateCapsuleRequest{
		Content:            r.Content,
		EncryptedURL:       r.EncryptedURL,
		RemoveEncryptedURL: r.RemoveEncryptedURL,
	}
	if r.UnlockDate != nil {
		d, err := models.UnixDate(*r.UnlockDate)
		if err != nil {
			return models.UpdateCapsuleRequest{}, err
		}
		req.UnlockDate = &d
	}
	return req, nil
}

type transferCapsuleRequest struct {
	NewOwner    id.Identity  `json:"new_owner"`
	MintAddress *id.Identity `json:"mint_address,omitempty"`
}

type attachMintRequest struct {
	Mint id.Identity `json:"mint"`
}
