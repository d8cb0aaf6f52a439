package handler

import (
	"time"

	"timevault/internal/capsule/address"
	"timevault/internal/capsule/models"
	id "timevault/pkg/domain"
)

type registryResponse struct {
	Authority     id.Identity `json:"authority"`
	TotalCapsules uint64      `json:"total_capsules"`
	Version       uint8       `json:"version"`
}

func toRegistryResponse(r *models.Registry) registryResponse {
	return registryResponse{
		Authority:     r.Authority,
		TotalCapsules: r.TotalCapsules,
		Version:       r.Version,
	}
}

type capsuleResponse struct {
	Address       address.Address `json:"address"`
	Creator       id.Identity     `json:"creator"`
	Owner         id.Identity     `json:"owner"`
	ID            uint64          `json:"id"`
	Title         string          `json:"title"`
	Content       string          `json:"content"`
	EncryptedURL  *string         `json:"encrypted_url,omitempty"`
	UnlockDate    int64           `json:"unlock_date"`
	IsUnlocked    bool            `json:"is_unlocked"`
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
	TransferredAt *int64          `json:"transferred_at,omitempty"`
	Mint          *id.Identity    `json:"mint,omitempty"`
	MintCreator   *id.Identity    `json:"mint_creator,omitempty"`
	Bump          uint8           `json:"bump"`
}

func toCapsuleResponse(c *models.Capsule) capsuleResponse {
	resp := capsuleResponse{
		Address:      c.Address,
		Creator:      c.Creator,
		Owner:        c.Owner,
		ID:           c.ID,
		Title:        c.Title,
		Content:      c.Content,
		EncryptedURL: c.EncryptedURL,
		UnlockDate:   unix(c.UnlockDate),
		IsUnlocked:   c.IsUnlocked,
		CreatedAt:    unix(c.CreatedAt),
		UpdatedAt:    unix(c.UpdatedAt),
		Mint:         c.Mint,
		MintCreator:  c.MintCreator,
		Bump:         c.Bump,
	}
	if c.TransferredAt != nil {
		t := unix(*c.TransferredAt)
		resp.TransferredAt = &t
	}
	return resp
}

func unix(t time.Time) int64 {
	return t.Unix()
}
