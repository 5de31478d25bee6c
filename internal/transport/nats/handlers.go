package nats

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
	"github.com/abgdnv/product-catalog/internal/service"
	"github.com/abgdnv/product-catalog/internal/transport/reply"
)

func (s *Server) create(ctx context.Context, payload []byte) (reply.Envelope, error) {
	var dto service.CreateProductDto
	if err := s.decode(payload, &dto); err != nil {
		return reply.Envelope{}, err
	}
	created, err := s.service.Create(ctx, dto)
	if err != nil {
		return reply.Envelope{}, err
	}
	return reply.Created(created), nil
}

func (s *Server) findAll(ctx context.Context, payload []byte) (reply.Envelope, error) {
	var dto service.PaginationDto
	if err := s.decode(payload, &dto); err != nil {
		return reply.Envelope{}, err
	}
	page, err := s.service.FindAll(ctx, dto)
	if err != nil {
		return reply.Envelope{}, err
	}
	return reply.Success(page), nil
}

func (s *Server) findOne(ctx context.Context, payload []byte) (reply.Envelope, error) {
	id, err := decodeID(payload)
	if err != nil {
		return reply.Envelope{}, err
	}
	found, err := s.service.FindOne(ctx, id)
	if err != nil {
		return reply.Envelope{}, err
	}
	return reply.Success(found), nil
}

func (s *Server) update(ctx context.Context, payload []byte) (reply.Envelope, error) {
	var dto service.UpdateProductDto
	if err := s.decode(payload, &dto); err != nil {
		return reply.Envelope{}, err
	}
	updated, err := s.service.Update(ctx, dto.ID, dto.ProductPatch)
	if err != nil {
		return reply.Envelope{}, err
	}
	return reply.Updated(updated), nil
}

func (s *Server) remove(ctx context.Context, payload []byte) (reply.Envelope, error) {
	id, err := decodeID(payload)
	if err != nil {
		return reply.Envelope{}, err
	}
	removed, err := s.service.Remove(ctx, id)
	if err != nil {
		return reply.Envelope{}, err
	}
	return reply.Deleted(removed), nil
}

func (s *Server) validateIDs(ctx context.Context, payload []byte) (reply.Envelope, error) {
	var dto service.ValidateProductsDto
	if err := s.decode(payload, &dto); err != nil {
		return reply.Envelope{}, err
	}
	products, err := s.service.ValidateIDs(ctx, dto.IDs)
	if err != nil {
		return reply.Envelope{}, err
	}
	return reply.Success(products), nil
}

// decode unmarshals payload into dto and validates it.
func (s *Server) decode(payload []byte, dto any) error {
	if err := json.Unmarshal(payload, dto); err != nil {
		return perrors.Wrap(perrors.InvalidArgument, err, "Invalid request payload")
	}
	if err := s.validate.Struct(dto); err != nil {
		return perrors.Wrap(perrors.InvalidArgument, err, service.ValidationMessage(err))
	}
	return nil
}

// decodeID reads the "id" member of payload. Numeric strings are accepted.
func decodeID(payload []byte) (int64, error) {
	var body struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return 0, perrors.Wrap(perrors.InvalidArgument, err, "Invalid request payload")
	}
	raw := strings.Trim(strings.TrimSpace(string(body.ID)), `"`)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, perrors.New(perrors.InvalidArgument, "Validation failed (numeric string is expected)")
	}
	if id < 1 {
		return 0, perrors.New(perrors.InvalidArgument, "id: failed on rule min")
	}
	return id, nil
}
