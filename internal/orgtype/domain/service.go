package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	CreateType(ctx context.Context, req CreateTypeRequest) (*TypeResponse, error)
	GetType(ctx context.Context, id string) (*TypeResponse, error)
	ListTypes(ctx context.Context) ([]TypeResponse, error)
	DeleteType(ctx context.Context, id string) error

	CreateSubtype(ctx context.Context, req CreateSubtypeRequest) (*SubtypeResponse, error)
	ListSubtypes(ctx context.Context, typeID string) ([]SubtypeResponse, error)
	DeleteSubtype(ctx context.Context, id string) error
	// ResolveSubtypes parses and loads every id; any unknown id fails with ErrInvalidSubtype.
	ResolveSubtypes(ctx context.Context, ids []string) ([]OrganizationSubtype, error)
}

type CreateTypeRequest struct {
	Name string
}

type CreateSubtypeRequest struct {
	TypeID string
	Name   string
}

type TypeResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Subtypes  []SubtypeResponse `json:"subtypes"`
	CreatedAt time.Time         `json:"created_at"`
}

type SubtypeResponse struct {
	ID        string    `json:"id"`
	TypeID    string    `json:"type"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidType      = errors.New("invalid_type")
	ErrInvalidSubtype   = errors.New("invalid_subtype")
	ErrTypeNotFound     = errors.New("organization_type_not_found")
	ErrSubtypeNotFound  = errors.New("organization_subtype_not_found")
	ErrDuplicateType    = errors.New("duplicate_organization_type")
	ErrDuplicateSubtype = errors.New("duplicate_organization_subtype")
	// ErrTypeProtected is returned when deleting a type that still has subtypes.
	ErrTypeProtected = errors.New("organization_type_protected")
)
